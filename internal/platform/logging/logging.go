// Package logging は slog のロガーを組み立てます。
package logging

import (
	"io"
	"log/slog"

	"github.com/ogurasousui/attendance-sync/internal/platform/config"
)

// New は level 以上を w にテキスト形式で書き出すロガーを返します。
func New(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
