package internal

import (
	"sort"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"roomtalk/internal/storage"
)

// tui model struct for all the components and modes
type TUIModel struct {
	controller *RoomController
	directory  *Directory

	textInput textinput.Model
	serverURL string
	mode      appMode

	// menu state
	menuEntries   []menuEntry
	menuIndex     int
	confirmDelete string

	// chat state
	messages []ChatMessage
	roomName string

	// image picker state
	browsePath  string
	browseItems []FileItem
	browseIndex int

	// status line
	connected    bool
	pendingSends int
	notice       string
	fatalErr     error
}

type appMode int

const (
	modeNamePrompt appMode = iota
	modeMenu
	modeRoomPrompt
	modeChat
	modeFilePicker
)

// menuEntry is one row on the menu: a stored conversation, a live room
// from the directory, or both.
type menuEntry struct {
	Name      string
	Clients   int
	Stored    bool
	Monitored bool
}

func NewTUIModel(controller *RoomController, directory *Directory, serverURL string) *TUIModel {
	input := textinput.New()
	input.CharLimit = 0

	model := &TUIModel{
		controller: controller,
		directory:  directory,
		textInput:  input,
		serverURL:  serverURL,
		mode:       modeMenu,
		connected:  controller.Connected(),
	}
	if controller.Username() == "" {
		model.enterNamePrompt()
	}
	return model
}

func (model *TUIModel) Init() tea.Cmd {
	return tea.Batch(
		model.waitForUpdateCmd(),
		model.loadMenuCmd(),
		statusTickCmd(),
		menuTickCmd(),
	)
}

func (model *TUIModel) enterNamePrompt() {
	model.mode = modeNamePrompt
	model.textInput.SetValue(model.controller.Username())
	model.textInput.Placeholder = "Enter display name…"
	model.textInput.Prompt = "name> "
	model.textInput.Focus()
}

func (model *TUIModel) enterMenu() {
	model.mode = modeMenu
	model.confirmDelete = ""
	model.textInput.SetValue("")
	model.textInput.Blur()
	model.textInput.Placeholder = ""
	model.textInput.Prompt = ""
}

func (model *TUIModel) enterRoomPrompt() {
	model.mode = modeRoomPrompt
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Enter room name…"
	model.textInput.Prompt = "room> "
	model.textInput.Focus()
}

func (model *TUIModel) enterChat(room string) {
	model.mode = modeChat
	model.roomName = room
	model.messages = model.controller.Timeline()
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Type a message…"
	model.textInput.Prompt = "> "
	model.textInput.Focus()
}

func (model *TUIModel) enterFilePicker() {
	model.mode = modeFilePicker
	model.browsePath = getDefaultBrowsePath()
	model.browseItems = nil
	model.browseIndex = 0
	model.textInput.Blur()
}

// mergeMenuEntries folds stored conversations, monitored rooms and the live
// directory listing into one sorted menu.
func mergeMenuEntries(convos []storage.ConversationInfo, live []DirectoryRoom, monitored []string) []menuEntry {
	byName := make(map[string]*menuEntry)
	order := make([]string, 0, len(convos)+len(live))

	add := func(name string) *menuEntry {
		if entry, ok := byName[name]; ok {
			return entry
		}
		entry := &menuEntry{Name: name}
		byName[name] = entry
		order = append(order, name)
		return entry
	}

	for _, convo := range convos {
		add(convo.Room).Stored = true
	}
	for _, room := range live {
		add(room.Name).Clients = room.Clients
	}
	for _, room := range monitored {
		add(room).Monitored = true
	}

	sort.Strings(order)
	entries := make([]menuEntry, 0, len(order))
	for _, name := range order {
		entries = append(entries, *byName[name])
	}
	return entries
}
