package detect

// snapshotProbe serializes visible containers and anchors of the page, its
// shadow roots and every same-origin frame. Cross-origin frames throw on
// access and are skipped.
const snapshotProbe = `
const MAX_CANDIDATES = 4000, MAX_LINKS = 2000;
const keywords = params.keywords || [];
const selectors = params.selectors || [];
const out = { viewportWidth: window.innerWidth, viewportHeight: window.innerHeight, candidates: [], links: [] };
let contextIndex = 0;

const styleOf = (el) => {
  const view = el.ownerDocument && el.ownerDocument.defaultView;
  if (!view) return null;
  const st = view.getComputedStyle(el);
  if (st.display === 'none' || st.visibility === 'hidden') return null;
  if (el.offsetParent === null && st.position !== 'fixed') return null;
  return st;
};
const opacityOf = (st) => { const o = parseFloat(st.opacity); return isNaN(o) ? 1 : o; };
const matchesAny = (el) => selectors.some((s) => { try { return el.matches(s); } catch (e) { return false; } });

const scan = (root) => {
  const ctx = contextIndex++;
  if (params.banner) {
    for (const el of root.querySelectorAll('div, section, aside, footer, nav, form')) {
      if (out.candidates.length >= MAX_CANDIDATES) break;
      const st = styleOf(el);
      if (!st) continue;
      const r = el.getBoundingClientRect();
      if (r.width <= 1 || r.height <= 1) continue;
      const text = (el.textContent || '').toLowerCase();
      out.candidates.push({
        context: ctx,
        tag: el.tagName,
        hasKeyword: keywords.some((k) => text.includes(k)),
        matchesSelector: matchesAny(el),
        position: st.position,
        zIndex: st.zIndex,
        rect: { top: r.top, bottom: r.bottom, width: r.width, height: r.height },
        hasNavOrLink: !!el.querySelector('nav, a'),
        opacity: opacityOf(st),
      });
    }
  }
  for (const a of root.querySelectorAll('a[href]')) {
    if (out.links.length >= MAX_LINKS) break;
    const st = styleOf(a);
    if (!st || opacityOf(st) < 0.1) continue;
    const r = a.getBoundingClientRect();
    if (r.width <= 1 || r.height <= 1) continue;
    out.links.push({ text: (a.textContent || '').trim().slice(0, 200), href: a.getAttribute('href') || '' });
  }
  for (const el of root.querySelectorAll('*')) {
    if (el.shadowRoot) scan(el.shadowRoot);
  }
};

const walk = (win) => {
  try {
    scan(win.document);
    for (let i = 0; i < win.frames.length; i++) walk(win.frames[i]);
  } catch (e) {}
};
walk(window);
return out;
`

// cmpProbe returns the provider of the first marker present, or "Unknown".
const cmpProbe = `
for (const m of params.markers) {
  try {
    if (m.kind === 'global' && window[m.value]) return m.provider;
    if (m.kind === 'id' && document.getElementById(m.value)) return m.provider;
    if (m.kind === 'selector' && document.querySelector(m.value)) return m.provider;
  } catch (e) {}
}
return 'Unknown';
`

// oneTrustProbe maps cookie names to the OneTrust group that declares them.
const oneTrustProbe = `
const ot = window.OneTrust;
if (!ot || typeof ot.GetDomainData !== 'function') return {};
const data = ot.GetDomainData();
const map = {};
for (const g of (data && data.Groups) || []) {
  if (!g || !g.Cookies || !g.GroupName) continue;
  for (const c of g.Cookies) {
    if (c && c.Name) map[c.Name] = g.GroupName;
  }
}
return map;
`
