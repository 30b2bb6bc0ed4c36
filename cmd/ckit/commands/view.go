package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/contentkit/pkg/history"
)

// consoleView prints build output and logs tree changes.
type consoleView struct {
	out      io.Writer
	echo     bool
	onFinish func()
	building bool
}

var _ history.View = (*consoleView)(nil)

func newConsoleView(echo bool) *consoleView {
	return &consoleView{out: os.Stdout, echo: echo}
}

func (v *consoleView) AddTreeNode(n history.TreeNode) {
	log.Debug().Str("path", n.Path).Bool("folder", n.Folder).Msg("Added")
}

func (v *consoleView) RemoveTreeNode(n history.TreeNode) {
	log.Debug().Str("path", n.Path).Bool("folder", n.Folder).Msg("Removed")
}

func (v *consoleView) UpdateTreeNode(n history.TreeNode) {
	log.Debug().Str("path", n.Path).Msg("Updated")
}

func (v *consoleView) UpdateProperties() {}

func (v *consoleView) OutputAppend(text string) {
	if v.echo {
		fmt.Fprintln(v.out, text)
	}
}

func (v *consoleView) UpdateMenu(state history.MenuState) {
	wasBuilding := v.building
	v.building = state.Building
	if wasBuilding && !state.Building && v.onFinish != nil {
		v.onFinish()
	}
}
