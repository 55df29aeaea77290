//go:build linux

package input

import "golang.design/x/hotkey"

// Mod1 and Mod4 are Alt and Super under X11.
func modAlt() hotkey.Modifier   { return hotkey.Mod1 }
func modSuper() hotkey.Modifier { return hotkey.Mod4 }
