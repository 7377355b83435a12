package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// pre styled colors, all from lipgloss
var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(1, 2).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	imageRefStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Underline(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	roomSelectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	roomItemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model TUIModel) View() string {
	if model.fatalErr != nil {
		return errorStyle.Render("Fatal: " + model.fatalErr.Error())
	}
	switch model.mode {
	case modeNamePrompt:
		return model.renderPrompt("Who are you?", "This name is shown next to everything you send.")
	case modeMenu:
		return model.renderMenuView()
	case modeRoomPrompt:
		return model.renderPrompt("New room", "Enter a room name and press Enter.")
	case modeFilePicker:
		return model.renderFilePickerView()
	default:
		return model.renderChatView()
	}
}

func (model TUIModel) renderPrompt(title, hint string) string {
	header := appTitleStyle.Render(title)
	hintText := menuHintStyle.Render(hint)

	viewSections := []string{header, hintText}
	if notice := model.renderNotice(); notice != "" {
		viewSections = append(viewSections, notice)
	}
	viewSections = append(viewSections, inputBoxStyle.Render(model.textInput.View()))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model TUIModel) renderMenuView() string {
	title := appTitleStyle.Render("RoomTalk")
	subtitle := subtitleStyle.Render(fmt.Sprintf("Signed in as %s", model.controller.Username()))

	viewSections := []string{title, subtitle, model.renderStatusLine()}

	if notice := model.renderNotice(); notice != "" {
		viewSections = append(viewSections, notice)
	}

	var roomLines []string
	if len(model.menuEntries) == 0 {
		roomLines = append(roomLines, menuHintStyle.Render("No rooms yet. Press n to create one."))
	} else {
		for idx, entry := range model.menuEntries {
			line := model.renderMenuEntry(entry)
			if idx == model.menuIndex {
				roomLines = append(roomLines, roomSelectedStyle.Render("➤ "+line))
			} else {
				roomLines = append(roomLines, roomItemStyle.Render("  "+line))
			}
		}
	}
	viewSections = append(viewSections, menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, roomLines...)))

	hints := menuHintStyle.Render("↑/↓ select • Enter open • n new room • m monitor • d delete • p profile • r refresh • q quit")
	viewSections = append(viewSections, hints)

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model TUIModel) renderMenuEntry(entry menuEntry) string {
	var tags []string
	if entry.Clients > 0 {
		tags = append(tags, fmt.Sprintf("%d online", entry.Clients))
	}
	if entry.Monitored {
		tags = append(tags, "monitored")
	}
	if entry.Stored && entry.Clients == 0 {
		tags = append(tags, "history")
	}
	if len(tags) == 0 {
		return entry.Name
	}
	return fmt.Sprintf("%s (%s)", entry.Name, strings.Join(tags, ", "))
}

func (model TUIModel) renderFilePickerView() string {
	header := appTitleStyle.Render("Pick an image")
	location := subtitleStyle.Render(model.browsePath)

	var lines []string
	if len(model.browseItems) == 0 {
		lines = append(lines, menuHintStyle.Render("No images here."))
	} else {
		for idx, item := range model.browseItems {
			label := item.Name
			if item.IsDir {
				label += "/"
			} else {
				label += "  " + formatFileSize(item.Size)
			}
			if idx == model.browseIndex {
				lines = append(lines, roomSelectedStyle.Render("➤ "+label))
			} else {
				lines = append(lines, roomItemStyle.Render("  "+label))
			}
		}
	}

	hints := menuHintStyle.Render("↑/↓ select • Enter open/send • Esc back")
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		location,
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)),
		hints,
	)
}

func (model TUIModel) renderChatView() string {
	headerSegments := []string{"RoomTalk"}
	headerSegments = append(headerSegments, fmt.Sprintf("Room %s", model.roomName))
	headerSegments = append(headerSegments, fmt.Sprintf("User %s", model.controller.Username()))
	if count := model.controller.Presence().Count(model.roomName); count > 0 {
		headerSegments = append(headerSegments, fmt.Sprintf("%d here", count))
	}
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var messageLines []string
	for _, chat := range model.messages {
		messageLines = append(messageLines, model.renderChatMessage(chat))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}

	messagesView := messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...))
	inputView := inputBoxStyle.Render(model.textInput.View())
	footerHint := menuHintStyle.Render("Esc or /leave back to menu • /image send image • /monitor keep in background")

	sections := []string{header, model.renderStatusLine()}
	if notice := model.renderNotice(); notice != "" {
		sections = append(sections, notice)
	}
	sections = append(sections, messagesView, inputView, footerHint)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model TUIModel) renderStatusLine() string {
	var status string
	if model.connected {
		status = connectedStyle.Render("Connected")
	} else {
		status = connectingStyle.Render("Offline, reconnecting…")
	}
	if model.pendingSends > 0 {
		status += statusStyle.Render(fmt.Sprintf("  %d queued", model.pendingSends))
	}
	snap := model.controller.Metrics()
	if snap.Reconnects > 1 {
		status += statusStyle.Render(fmt.Sprintf("  %d reconnects", snap.Reconnects-1))
	}
	if snap.Dropped > 0 {
		status += statusStyle.Render(fmt.Sprintf("  %d dropped", snap.Dropped))
	}
	return status
}

func (model TUIModel) renderNotice() string {
	if model.notice == "" {
		return ""
	}
	return noticeBoxStyle.Render(systemMessageStyle.Render(model.notice))
}

// renderChatMessage renders a single log line. It stamps the timestamp, picks
// a color for the sender, and indents multi-line messages so they stay legible.
func (model TUIModel) renderChatMessage(chat ChatMessage) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", time.UnixMilli(chat.SentAt).Format("15:04:05")))
	if chat.IsInfo() {
		body := systemMessageStyle.Render(chat.Body)
		return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", body)
	}

	var nameStyle lipgloss.Style
	if chat.Author == model.controller.Username() {
		nameStyle = activeUserStyle
	} else {
		nameStyle = usernameStyle.Copy().Foreground(colorForUser(chat.Author))
	}

	name := nameStyle.Render(chat.Author)
	var bodyText string
	if IsImageRef(chat.Body) {
		bodyText = imageRefStyle.Render("[image] " + chat.Body)
	} else {
		bodyText = messageBodyStyle.Render(strings.ReplaceAll(chat.Body, "\n", "\n   "))
	}

	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", bodyText)
}

// color for users
func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
