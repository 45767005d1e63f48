// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package requestui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jhsmart/docsync/lib/submission"
)

// Theme holds the viewer's colors.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	StatusPending  lipgloss.Color
	StatusResolved lipgloss.Color

	HeaderForeground lipgloss.Color
	ActiveTab        lipgloss.Color
	BorderColor      lipgloss.Color
	ErrorText        lipgloss.Color
}

// StatusColor returns the color for a record status. Unknown values
// render faint.
func (theme Theme) StatusColor(status submission.Status) lipgloss.Color {
	switch status {
	case submission.StatusPending:
		return theme.StatusPending
	case submission.StatusResolved:
		return theme.StatusResolved
	default:
		return theme.FaintText
	}
}

// DefaultTheme targets 256-color terminals with a dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	StatusPending:  lipgloss.Color("220"), // amber
	StatusResolved: lipgloss.Color("114"), // green

	HeaderForeground: lipgloss.Color("255"),
	ActiveTab:        lipgloss.Color("75"),
	BorderColor:      lipgloss.Color("240"),
	ErrorText:        lipgloss.Color("196"),
}
