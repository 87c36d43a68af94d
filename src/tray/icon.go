package tray

import (
	"fyne.io/fyne/v2"
)

// SVGContent is an answer sheet with a check mark.
const SVGContent = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 16 16" width="16" height="16">
  <rect x="2.5" y="1.5" width="11" height="13" rx="1.5" fill="#ffffff" stroke="#1f4e79" stroke-width="1"/>
  <line x1="5" y1="4.5" x2="11" y2="4.5" stroke="#7f8c8d" stroke-width="1"/>
  <line x1="5" y1="7" x2="9" y2="7" stroke="#7f8c8d" stroke-width="1"/>
  <path d="M5 10.5 L7 12.5 L11.5 8" fill="none" stroke="#c0392b" stroke-width="1.6" stroke-linecap="round" stroke-linejoin="round"/>
</svg>`

// Icon is the tray and window icon resource.
var Icon = fyne.NewStaticResource("screen-grader.svg", []byte(SVGContent))
