package client

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"triarena/server"
)

// Display 彩色事件输出
type Display struct {
	out io.Writer

	serverColor  *color.Color
	connectColor *color.Color
	fireColor    *color.Color
	damageColor  *color.Color
	warningColor *color.Color
	infoColor    *color.Color
	playerColor  *color.Color
}

func NewDisplay() *Display {
	return NewDisplayTo(os.Stdout)
}

// NewDisplayTo 输出到指定 writer（测试时用 bytes.Buffer）
func NewDisplayTo(out io.Writer) *Display {
	return &Display{
		out:          out,
		serverColor:  color.New(color.FgCyan, color.Bold),
		connectColor: color.New(color.FgGreen, color.Bold),
		fireColor:    color.New(color.FgYellow),
		damageColor:  color.New(color.FgRed),
		warningColor: color.New(color.FgYellow, color.Bold),
		infoColor:    color.New(color.FgWhite),
		playerColor:  color.New(color.FgCyan),
	}
}

func stamp() string { return time.Now().Format("15:04:05") }

func (d *Display) Status(message string) {
	d.serverColor.Fprintf(d.out, "[%s] [SERVER] %s\n", stamp(), message)
}

func (d *Display) Hello(h server.HelloMessage) {
	d.connectColor.Fprintf(d.out, "[%s] [HELLO] player=%s zone=%d\n", stamp(), h.PlayerID, h.Zone)
}

func (d *Display) Fire(f server.FireRelay) {
	target := ""
	if f.TargetID != "" {
		target = " target=" + short(f.TargetID)
	}
	d.fireColor.Fprintf(d.out, "[%s] [FIRE] %s %s at (%.0f,%.0f) angle=%.2f%s\n",
		stamp(), short(f.FromID), f.BulletType, f.X, f.Y, f.Angle, target)
}

func (d *Display) Damage(dm server.DamageRelay, hpAfter int) {
	d.damageColor.Fprintf(d.out, "[%s] [DAMAGE] %s -%.0f hp=%d\n", stamp(), short(dm.PlayerID), dm.Amount, hpAfter)
}

func (d *Display) Error(message string) {
	d.warningColor.Fprintf(d.out, "[%s] [ERROR] %s\n", stamp(), message)
}

// Players 一行打印所有其他玩家
func (d *Display) Players(v *View) {
	ids := make([]string, 0, len(v.Others))
	for id := range v.Others {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		p := v.Others[id]
		parts = append(parts, fmt.Sprintf("%s@z%d(%.0f,%.0f) hp=%d", short(id), p.Zone, p.X, p.Y, p.HP))
	}
	d.playerColor.Fprintf(d.out, "[%s] [PLAYERS] me=%s hp=%d | %s\n", stamp(), short(v.MyID), v.HP, strings.Join(parts, "  "))
}

func (d *Display) Info(format string, args ...any) {
	d.infoColor.Fprintf(d.out, "[%s] %s\n", stamp(), fmt.Sprintf(format, args...))
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
