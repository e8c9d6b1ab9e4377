package presentation

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/assetcache/internal/asset"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#4B5563"})
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"})
	loadedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"})
	dirtyStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#60A5FA"})
	insertStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"})
	deleteStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"})
)

func stateStyle(s asset.LoadState) lipgloss.Style {
	switch s {
	case asset.StateLoaded:
		return loadedStyle
	case asset.StateDirty, asset.StateRebuilding:
		return dirtyStyle
	default:
		return subtleStyle
	}
}

func severityStyle(s asset.Severity) lipgloss.Style {
	if s == asset.SeverityError {
		return errorStyle
	}
	return warningStyle
}
