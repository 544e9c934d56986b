package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"

	"karolbroda.com/lyricnote/internal/colors"
	"karolbroda.com/lyricnote/internal/engine"
)

const (
	bannerText = "lyricnote"
	bannerFont = "small"
	offText    = "lyrics off · press t to turn on"
)

var pulseFrames = []string{"·", "•", "●", "•"}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	width, height := m.width, m.height
	if width == 0 {
		width = 80
	}
	if height == 0 {
		height = 24
	}

	var lines []string
	switch m.screen {
	case screenIdle:
		lines = m.renderIdle(width, height)
	case screenOff:
		lines = m.renderOff(width, height)
	default:
		lines = m.renderTrack(width, height)
	}

	return strings.Join(fit(lines, height), "\n")
}

func (m Model) renderIdle(width, height int) []string {
	banner := figure.NewFigure(bannerText, bannerFont, true).Slicify()
	gradient := m.palette.Gradient

	block := make([]string, 0, len(banner)+3)
	if width >= 60 {
		for _, row := range banner {
			block = append(block, center(colors.RenderGradientText(row, gradient, true), lipgloss.Width(row), width))
		}
		block = append(block, "")
	}

	waiting := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Dim)).Italic(true).Render(engine.IdleText)
	block = append(block, center(waiting, lipgloss.Width(engine.IdleText), width))

	dot := pulseFrames[m.pulse%len(pulseFrames)]
	block = append(block, center(lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Secondary)).Render(dot), 1, width))

	return vcenter(block, height)
}

func (m Model) renderOff(width, height int) []string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Dim))
	block := []string{center(style.Render(offText), lipgloss.Width(offText), width)}
	if m.toggleErr != nil {
		msg := "toggle failed: " + m.toggleErr.Error()
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff6b6b"))
		block = append(block, center(errStyle.Render(msg), lipgloss.Width(msg), width))
	}
	return vcenter(block, height)
}

func (m Model) renderTrack(width, height int) []string {
	var lines []string
	if !m.hideHeader && m.frame.Track.Title != "" {
		lines = append(lines, m.renderHeader(width)...)
	}
	return append(lines, vcenter(m.renderLyrics(width), height-len(lines))...)
}

func (m Model) renderHeader(width int) []string {
	info := m.renderTrackInfo(width)

	rows := max(len(info), len(m.artLines))
	lines := make([]string, 0, rows+3)
	lines = append(lines, "")

	artWidth := m.artSize[0]
	for i := 0; i < rows; i++ {
		var line strings.Builder
		if len(m.artLines) > 0 {
			line.WriteString("  ")
			if i < len(m.artLines) {
				line.WriteString(m.artLines[i])
			} else {
				line.WriteString(strings.Repeat(" ", artWidth))
			}
			line.WriteString("  ")
		} else {
			line.WriteString("  ")
		}
		if i < len(info) {
			line.WriteString(info[i])
		}
		lines = append(lines, line.String())
	}

	lines = append(lines, "")
	if m.frame.Track.DurationMs > 0 {
		lines = append(lines, m.renderProgress(width))
	}
	return append(lines, "")
}

func (m Model) renderTrackInfo(width int) []string {
	maxWidth := max(width-20, 20)
	trk := m.frame.Track

	lines := []string{
		lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Primary)).Bold(true).Render(truncate(trk.Title, maxWidth)),
		lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Secondary)).Render(truncate(trk.Artist, maxWidth)),
	}
	if trk.Album != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Dim)).Render(truncate(trk.Album, maxWidth)))
	}
	return lines
}

func (m Model) renderProgress(width int) string {
	barWidth := max(width-20, 20)
	duration := m.frame.Track.DurationMs
	position := min(max(m.frame.PositionMs, 0), duration)

	filled := int(float64(barWidth) * float64(position) / float64(duration))

	filledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Primary))
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(colors.Blend(m.palette.Dim, m.palette.Secondary, 0.25))).Faint(true)

	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		switch {
		case i < filled:
			bar.WriteString(filledStyle.Render("━"))
		case i == filled:
			bar.WriteString(filledStyle.Render("●"))
		default:
			bar.WriteString(emptyStyle.Render("─"))
		}
	}

	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Dim))
	return fmt.Sprintf("  %s  %s  %s",
		timeStyle.Render(colors.FormatTime(position)),
		bar.String(),
		timeStyle.Render(colors.FormatTime(duration)))
}

func (m Model) renderLyrics(width int) []string {
	side := lipgloss.NewStyle().Foreground(lipgloss.Color(colors.Desaturate(m.palette.Accent, 0.5))).Faint(true)

	lines := make([]string, 0, 5)
	if prev := m.frame.Previous; prev != "" {
		lines = append(lines, center(side.Render(prev), lipgloss.Width(prev), width))
	} else {
		lines = append(lines, "")
	}
	lines = append(lines, "")

	current := m.frame.Current
	switch m.screen {
	case screenPaused, screenNoLyrics:
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(m.palette.Dim)).Italic(true)
		lines = append(lines, center(style.Render(current), lipgloss.Width(current), width))
	default:
		if strings.TrimSpace(current) == "" {
			current = "♪"
		}
		lines = append(lines, center(colors.RenderGradientText(current, m.palette.Gradient, true), lipgloss.Width(current), width))
	}

	lines = append(lines, "")
	if next := m.frame.Next; next != "" {
		lines = append(lines, center(side.Render(next), lipgloss.Width(next), width))
	}
	return lines
}

func center(text string, visualWidth int, screenWidth int) string {
	return strings.Repeat(" ", max((screenWidth-visualWidth)/2, 0)) + text
}

func vcenter(block []string, height int) []string {
	pad := max((height-len(block))/2, 0)
	out := make([]string, pad, pad+len(block))
	return append(out, block...)
}

func fit(lines []string, height int) []string {
	if len(lines) > height {
		return lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return lines
}

func truncate(s string, maxWidth int) string {
	r := []rune(s)
	if len(r) <= maxWidth {
		return s
	}
	return string(r[:maxWidth-1]) + "…"
}
