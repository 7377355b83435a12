package internal

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// waitForUpdateCmd blocks on the controller's change feed and turns the
// next notification into a bubbletea message. Update re-issues it after
// every receipt, so exactly one waiter is alive at a time.
func (model *TUIModel) waitForUpdateCmd() tea.Cmd {
	return func() tea.Msg {
		return controllerUpdateMsg(<-model.controller.Updates())
	}
}

func (model *TUIModel) loadMenuCmd() tea.Cmd {
	return func() tea.Msg {
		convos, err := model.controller.Conversations(context.Background())
		if err != nil {
			return menuLoadedMsg{err: err}
		}
		monitored, err := model.controller.MonitoredRooms(context.Background())
		if err != nil {
			return menuLoadedMsg{err: err}
		}
		// the directory is best effort: offline menus still list stored rooms
		live, liveErr := model.directory.ListRooms()
		return menuLoadedMsg{convos: convos, live: live, monitored: monitored, liveErr: liveErr}
	}
}

func (model *TUIModel) openRoomCmd(room string) tea.Cmd {
	return func() tea.Msg {
		if err := model.controller.OpenRoom(context.Background(), room); err != nil {
			return roomOpenedMsg{room: room, err: err}
		}
		return roomOpenedMsg{room: room}
	}
}

func (model *TUIModel) createRoomCmd(room string) tea.Cmd {
	return func() tea.Msg {
		if err := model.directory.CreateRoom(room); err != nil {
			return noticeMsg("Could not create room: " + err.Error())
		}
		return model.openRoomCmd(room)()
	}
}

func (model *TUIModel) sendCmd(body string) tea.Cmd {
	return func() tea.Msg {
		if err := model.controller.Send(context.Background(), body); err != nil {
			return noticeMsg("Send failed: " + err.Error())
		}
		return nil
	}
}

func (model *TUIModel) sendImageCmd(path string) tea.Cmd {
	return func() tea.Msg {
		if err := model.controller.SendImage(context.Background(), path); err != nil {
			return noticeMsg("Image not sent: " + err.Error())
		}
		return noticeMsg("Image sent.")
	}
}

func (model *TUIModel) saveProfileCmd(username string) tea.Cmd {
	return func() tea.Msg {
		if err := model.controller.SetProfile(context.Background(), username); err != nil {
			return noticeMsg("Could not save profile: " + err.Error())
		}
		return profileSavedMsg{}
	}
}

func (model *TUIModel) browseCmd(path string) tea.Cmd {
	return func() tea.Msg {
		items, err := browseDirectory(path)
		return browseMsg{path: path, items: items, err: err}
	}
}

func (model *TUIModel) toggleMonitorCmd(room string, monitored bool) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var err error
		if monitored {
			err = model.controller.UnmonitorRoom(ctx, room)
		} else {
			err = model.controller.MonitorRoom(ctx, room)
		}
		if err != nil {
			return noticeMsg("Monitor toggle failed: " + err.Error())
		}
		return model.loadMenuCmd()()
	}
}

func (model *TUIModel) deleteConversationCmd(room string) tea.Cmd {
	return func() tea.Msg {
		if err := model.controller.DeleteConversation(context.Background(), room); err != nil {
			return noticeMsg("Delete failed: " + err.Error())
		}
		return model.loadMenuCmd()()
	}
}

func statusTickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

func menuTickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return menuTickMsg{}
	})
}

func (model *TUIModel) statusCmd() tea.Cmd {
	return func() tea.Msg {
		pending, err := model.controller.PendingCount(context.Background())
		if err != nil {
			pending = 0
		}
		return statusMsg{connected: model.controller.Connected(), pending: pending}
	}
}

// RunClient drives the TUI over an already started controller.
func RunClient(controller *RoomController, directory *Directory, serverURL string) error {
	program := tea.NewProgram(NewTUIModel(controller, directory, serverURL))
	_, err := program.Run()
	return err
}
