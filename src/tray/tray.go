package tray

import (
	"fmt"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
)

// Actions are the callbacks behind the tray menu items.
type Actions struct {
	Grade     func()
	ShowPanel func()
}

// Setup installs the tray menu on a. Returns false when the platform has no
// system tray; the hotkey still works in that case.
func Setup(a fyne.App, hotkey string, actions Actions) bool {
	desk, ok := a.(desktop.App)
	if !ok {
		log.Printf("Tray: system tray not supported by this driver")
		return false
	}

	gradeLabel := "Grade region"
	if hotkey != "" {
		gradeLabel = fmt.Sprintf("Grade region (%s)", hotkey)
	}

	menu := fyne.NewMenu("Screen Grader",
		fyne.NewMenuItem(gradeLabel, func() {
			log.Printf("Tray: grade clicked")
			if actions.Grade != nil {
				actions.Grade()
			}
		}),
		fyne.NewMenuItem("Show panel", func() {
			if actions.ShowPanel != nil {
				actions.ShowPanel()
			}
		}),
	)
	desk.SetSystemTrayMenu(menu)
	desk.SetSystemTrayIcon(Icon)
	log.Printf("Tray: ready")
	return true
}
