package browser

// findScript resolves a selector inside an optional scope and stamps the first visible
// match with a ref. Arguments: scope ref, selector, new ref. Returns the ref or "".
//
// Selector forms: CSS, XPath ("xpath=..." or starting with "//"), exact visible text
// ("text=..."), CSS filtered by contained text ("has-text=css|text").
const findScript = `(function(scopeRef, sel, newRef) {
  function visible(el) {
    if (!el || !el.isConnected || el.nodeType !== 1) return false;
    var st = window.getComputedStyle(el);
    if (st.display === 'none' || st.visibility === 'hidden' || parseFloat(st.opacity) === 0) return false;
    var r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  }
  function textOf(el) {
    return (el.innerText || el.textContent || '').trim();
  }
  function query(root, sel) {
    var out = [];
    if (sel.indexOf('xpath=') === 0 || sel.indexOf('//') === 0 || sel.indexOf('(//') === 0) {
      var xp = sel.indexOf('xpath=') === 0 ? sel.slice(6) : sel;
      if (root !== document && xp.charAt(0) === '/') xp = '.' + xp;
      var snap = document.evaluate(xp, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
      for (var i = 0; i < snap.snapshotLength; i++) out.push(snap.snapshotItem(i));
      return out;
    }
    if (sel.indexOf('text=') === 0) {
      var want = sel.slice(5).trim();
      var all = root.querySelectorAll('*');
      for (var j = 0; j < all.length; j++) {
        if (textOf(all[j]) === want) out.push(all[j]);
      }
      return out;
    }
    if (sel.indexOf('has-text=') === 0) {
      var body = sel.slice(9), k = body.indexOf('|');
      var css = k < 0 ? body : body.slice(0, k), txt = k < 0 ? '' : body.slice(k + 1);
      var cand = root.querySelectorAll(css);
      for (var m = 0; m < cand.length; m++) {
        if (textOf(cand[m]).indexOf(txt) >= 0) out.push(cand[m]);
      }
      return out;
    }
    return Array.prototype.slice.call(root.querySelectorAll(sel));
  }
  var root = document;
  if (scopeRef) {
    root = document.querySelector('[data-mca-ref="' + scopeRef + '"]');
    if (!visible(root)) return '';
  }
  var found;
  try { found = query(root, sel); } catch (e) { return ''; }
  for (var n = 0; n < found.length; n++) {
    if (visible(found[n])) {
      found[n].setAttribute('data-mca-ref', newRef);
      return newRef;
    }
  }
  return '';
})(%q, %q, %q)`

// readFieldScript returns an element's value, falling back to its visible text.
const readFieldScript = `(function(ref) {
  var el = document.querySelector('[data-mca-ref="' + ref + '"]');
  if (!el) return '';
  var v = (el.value !== undefined && el.value !== null) ? String(el.value) : '';
  if (v.trim() === '') v = el.innerText || el.textContent || '';
  return v.trim();
})(%q)`

// fetchSelfScript downloads the current document's bytes with the page's cookies
// and returns them base64 encoded.
const fetchSelfScript = `fetch(location.href, {credentials: 'include'})
  .then(function(r) { return r.arrayBuffer(); })
  .then(function(buf) {
    var bytes = new Uint8Array(buf), s = '';
    for (var i = 0; i < bytes.length; i += 0x8000) {
      s += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
    }
    return btoa(s);
  })`
