package internal

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"roomtalk/internal/storage"
)

type (
	controllerUpdateMsg ControllerUpdate
	noticeMsg           string
	profileSavedMsg     struct{}
	statusTickMsg       struct{}
	menuTickMsg         struct{}

	menuLoadedMsg struct {
		convos    []storage.ConversationInfo
		live      []DirectoryRoom
		monitored []string
		liveErr   error
		err       error
	}
	roomOpenedMsg struct {
		room string
		err  error
	}
	browseMsg struct {
		path  string
		items []FileItem
		err   error
	}
	statusMsg struct {
		connected bool
		pending   int
	}
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC {
			model.controller.Close()
			return model, tea.Quit
		}
		switch model.mode {
		case modeNamePrompt:
			return model.updateNamePrompt(typedMessage)
		case modeMenu:
			return model.updateMenu(typedMessage)
		case modeRoomPrompt:
			return model.updateRoomPrompt(typedMessage)
		case modeChat:
			return model.updateChat(typedMessage)
		case modeFilePicker:
			return model.updateFilePicker(typedMessage)
		}

	case controllerUpdateMsg:
		switch ControllerUpdate(typedMessage).Kind {
		case UpdateTimeline:
			if model.mode == modeChat {
				model.messages = model.controller.Timeline()
			}
		case UpdateConnection:
			model.connected = model.controller.Connected()
		}
		return model, model.waitForUpdateCmd()

	case menuLoadedMsg:
		if typedMessage.err != nil {
			model.fatalErr = typedMessage.err
			return model, tea.Quit
		}
		model.menuEntries = mergeMenuEntries(typedMessage.convos, typedMessage.live, typedMessage.monitored)
		if model.menuIndex >= len(model.menuEntries) {
			model.menuIndex = 0
		}
		if typedMessage.liveErr != nil {
			model.notice = "Room directory unavailable, showing stored rooms."
		}
		return model, nil

	case roomOpenedMsg:
		if typedMessage.err != nil {
			model.notice = "Could not open room: " + typedMessage.err.Error()
			return model, nil
		}
		model.enterChat(typedMessage.room)
		return model, nil

	case browseMsg:
		if typedMessage.err != nil {
			model.notice = "Cannot read directory: " + typedMessage.err.Error()
			model.enterChat(model.roomName)
			return model, nil
		}
		model.browsePath = typedMessage.path
		model.browseItems = typedMessage.items
		model.browseIndex = 0
		return model, nil

	case profileSavedMsg:
		model.enterMenu()
		return model, model.loadMenuCmd()

	case noticeMsg:
		model.notice = string(typedMessage)
		return model, nil

	case statusTickMsg:
		return model, tea.Batch(model.statusCmd(), statusTickCmd())

	case menuTickMsg:
		if model.mode == modeMenu {
			return model, tea.Batch(model.loadMenuCmd(), menuTickCmd())
		}
		return model, menuTickCmd()

	case statusMsg:
		model.connected = typedMessage.connected
		model.pendingSends = typedMessage.pending
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) updateNamePrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyEnter {
		trimmed := strings.TrimSpace(model.textInput.Value())
		if trimmed == "" {
			model.notice = "Display name cannot be empty."
			return model, nil
		}
		return model, model.saveProfileCmd(trimmed)
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) updateMenu(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	resetConfirm := func() {
		model.confirmDelete = ""
	}
	switch key.String() {
	case "up", "k":
		resetConfirm()
		if model.menuIndex > 0 {
			model.menuIndex--
		}
		return model, nil
	case "down", "j":
		resetConfirm()
		if model.menuIndex < len(model.menuEntries)-1 {
			model.menuIndex++
		}
		return model, nil
	case "enter":
		if len(model.menuEntries) == 0 {
			return model, nil
		}
		resetConfirm()
		return model, model.openRoomCmd(model.menuEntries[model.menuIndex].Name)
	case "n":
		resetConfirm()
		model.enterRoomPrompt()
		return model, nil
	case "m":
		if len(model.menuEntries) == 0 {
			return model, nil
		}
		resetConfirm()
		entry := model.menuEntries[model.menuIndex]
		return model, model.toggleMonitorCmd(entry.Name, entry.Monitored)
	case "d":
		if len(model.menuEntries) == 0 {
			return model, nil
		}
		entry := model.menuEntries[model.menuIndex]
		if model.confirmDelete != entry.Name {
			model.confirmDelete = entry.Name
			model.notice = "Press d again to delete " + entry.Name + " and its history."
			return model, nil
		}
		model.confirmDelete = ""
		model.notice = ""
		return model, model.deleteConversationCmd(entry.Name)
	case "p":
		resetConfirm()
		model.enterNamePrompt()
		return model, nil
	case "r":
		resetConfirm()
		return model, model.loadMenuCmd()
	case "q":
		model.controller.Close()
		return model, tea.Quit
	}
	return model, nil
}

func (model *TUIModel) updateRoomPrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.enterMenu()
		return model, nil
	case tea.KeyEnter:
		trimmed := strings.TrimSpace(model.textInput.Value())
		if trimmed == "" {
			return model, nil
		}
		return model, model.createRoomCmd(trimmed)
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) updateChat(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.controller.LeaveRoom(model.roomName)
		model.enterMenu()
		return model, model.loadMenuCmd()
	case tea.KeyEnter:
		trimmed := strings.TrimSpace(model.textInput.Value())
		if trimmed == "" {
			return model, nil
		}
		if strings.HasPrefix(trimmed, "/") {
			return model.runChatCommand(strings.ToLower(trimmed))
		}
		model.textInput.SetValue("")
		return model, model.sendCmd(trimmed)
	}
	var command tea.Cmd
	model.textInput, command = model.textInput.Update(key)
	return model, command
}

func (model *TUIModel) runChatCommand(command string) (tea.Model, tea.Cmd) {
	model.textInput.SetValue("")
	switch command {
	case "/quit", "/exit":
		model.controller.Close()
		return model, tea.Quit
	case "/leave":
		model.controller.LeaveRoom(model.roomName)
		model.enterMenu()
		return model, model.loadMenuCmd()
	case "/image":
		model.enterFilePicker()
		return model, model.browseCmd(model.browsePath)
	case "/monitor":
		return model, model.toggleMonitorCmd(model.roomName, false)
	case "/unmonitor":
		return model, model.toggleMonitorCmd(model.roomName, true)
	default:
		model.notice = "Unknown command: " + command
		return model, nil
	}
}

func (model *TUIModel) updateFilePicker(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		model.enterChat(model.roomName)
		return model, nil
	case "up", "k":
		if model.browseIndex > 0 {
			model.browseIndex--
		}
		return model, nil
	case "down", "j":
		if model.browseIndex < len(model.browseItems)-1 {
			model.browseIndex++
		}
		return model, nil
	case "enter":
		if len(model.browseItems) == 0 {
			return model, nil
		}
		item := model.browseItems[model.browseIndex]
		if item.IsDir {
			return model, model.browseCmd(item.Path)
		}
		model.enterChat(model.roomName)
		return model, model.sendImageCmd(item.Path)
	}
	return model, nil
}
