package services

import (
	"time"

	"github.com/nexconsult/mca-verify/internal/browser"
)

// Portal outcomes of a challenge submission
const (
	accept = "accept"
	reject = "reject"
	silent = "silent"
)

const (
	testCIN = "U45400DL2007PTC171129"
	testDIN = "01234567"
)

// outcomeScript hands out submission outcomes; the last one repeats
type outcomeScript struct {
	outcomes []string
	next     int
}

func (o *outcomeScript) pop() string {
	if len(o.outcomes) == 0 {
		return silent
	}
	out := o.outcomes[min(o.next, len(o.outcomes)-1)]
	o.next++
	return out
}

var dinChallenge = []string{"#newCaptchaModal", "#new-captcha-canvas", "#captcha-input", "#validate-captcha", "#captcha-refresh-img"}

// dinPage scripts the DIN status page: search, one challenge round, result panel
func dinPage(clock *fakeClock, outcomes ...string) *fakeSurface {
	s := newFakeSurface(clock)
	script := &outcomeScript{outcomes: outcomes}

	s.show("input[placeholder='Enter Here']", "has-text=button|Submit")
	s.onClick["has-text=button|Submit"] = func(f *fakeSurface) {
		f.show(dinChallenge...)
	}
	s.onClick["#validate-captcha"] = func(f *fakeSurface) {
		switch script.pop() {
		case accept:
			f.hide(dinChallenge...)
			f.show("#resultPanel", "#DIN", "#directorName", "#DINstatus", "#DINactive", "#approvalDate")
		case reject:
			f.show(".errormsg")
		}
	}
	s.onClick["#captcha-refresh-img"] = func(f *fakeSurface) {
		f.generation++
		f.hide(".errormsg")
	}

	s.fields["#DIN"] = testDIN
	s.fields["#directorName"] = "JOHN DOE"
	s.fields["#DINstatus"] = "Approved"
	s.fields["#DINactive"] = "Yes"
	s.fields["#approvalDate"] = "01/04/2010"
	return s
}

var annualChallenge = []string{"#captchaCanvas", "#customCaptchaInput", "#check", "#captchaRefresh"}

// annualFilingPage scripts the annual filing page: search, challenge, company
// selection, second challenge, filings table with one challan
func annualFilingPage(clock *fakeClock, outcomes ...string) *fakeSurface {
	s := newFakeSurface(clock)
	script := &outcomeScript{outcomes: outcomes}
	link := expand(companyLink[0], testCIN)
	round := 1

	s.show("#masterdata-search-box", "#searchicon")
	s.onClick["#searchicon"] = func(f *fakeSurface) {
		f.show("#captchaModal")
		f.show(annualChallenge...)
	}
	s.onClick["#check"] = func(f *fakeSurface) {
		switch script.pop() {
		case accept:
			f.hide("#captchaModal", ".errormsg")
			if round == 1 {
				f.show(link)
				return
			}
			f.hide(link)
			f.show("#screenone", "table.tab-table", secondRowControl)
		case reject:
			f.show(".errormsg")
		}
	}
	s.onClick[link] = func(f *fakeSurface) {
		round = 2
		f.generation++
		f.showIn("#captchaModal", time.Second)
	}
	s.onClick["#captchaRefresh"] = func(f *fakeSurface) {
		f.generation++
		f.hide(".errormsg")
	}

	s.html["table.tab-table"] = filingsTable
	s.docs[secondRowControl] = browser.Document{
		Data: []byte("Service Request Date : 29/11/2021\nAdditional Fee 600.00\nTotal Amount Due: 1,250.00"),
		Via:  browser.ViaTab,
	}
	return s
}
