package trainer

import "context"
import "fmt"
import "io"
import "os"
import "strings"

import "github.com/charmbracelet/lipgloss"

import "github.com/neurlang/geoclassifier/device"
import "github.com/neurlang/geoclassifier/layer"

// ModelSummary prints a table of the modules of the system down to MaxDepth
// when fitting starts: depth 1 is the network, depth 2 its layers.
type ModelSummary struct {
	NopCallback

	MaxDepth int
	Out      io.Writer
}

var (
	summaryFrame  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	summaryHeader = lipgloss.NewStyle().Bold(true)
	summaryDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type summaryRow struct {
	name, kind, params, shape string
}

func formatShape(s layer.Shape) string {
	return fmt.Sprintf("[%d, %d, %d]", s[0], s[1], s[2])
}

// formatCount abbreviates parameter counts like 1.2 K or 3.4 M.
func formatCount(n int) string {
	switch {
	case n >= 1e6:
		return fmt.Sprintf("%.1f M", float64(n)/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.1f K", float64(n)/1e3)
	}
	return fmt.Sprint(n)
}

// Render returns the summary table of t.
func (s ModelSummary) Render(t *Trainer) string {
	net := t.System.Net
	rows := []summaryRow{{"Name", "Type", "Params", "Out shape"}}
	if s.MaxDepth >= 1 {
		rows = append(rows, summaryRow{"net", "FeedforwardNetwork", formatCount(net.Len()), formatShape(net.OutShape())})
	}
	if s.MaxDepth >= 2 {
		for i := 0; i < net.LenLayers(); i++ {
			l := net.GetLayer(i)
			rows = append(rows, summaryRow{fmt.Sprintf("net.%d", i), l.Kind(), formatCount(layer.NumParams(l)),
				formatShape(l.OutShape())})
		}
	}
	var w [4]int
	for _, r := range rows {
		for i, c := range []string{r.name, r.kind, r.params, r.shape} {
			if len(c) > w[i] {
				w[i] = len(c)
			}
		}
	}
	var lines []string
	for i, r := range rows {
		line := fmt.Sprintf("%-3s | %-*s | %-*s | %*s | %-*s", "", w[0], r.name, w[1], r.kind, w[2], r.params, w[3], r.shape)
		if i == 0 {
			line = summaryHeader.Render(line)
		} else {
			line = fmt.Sprintf("%-3d", i-1) + line[3:]
		}
		lines = append(lines, line)
	}
	total := net.Len()
	lines = append(lines,
		"",
		fmt.Sprintf("%s trainable params", formatCount(total)),
		fmt.Sprintf("%s non-trainable params", formatCount(0)),
		fmt.Sprintf("%.3f total estimated model params size (MB)", float64(total)*4/1e6),
		summaryDim.Render(fmt.Sprintf("input %s, device %s", formatShape(t.InShape), device.Probe())),
	)
	return summaryFrame.Render(strings.Join(lines, "\n"))
}

// OnFitStart prints the summary.
func (s ModelSummary) OnFitStart(_ context.Context, t *Trainer) error {
	out := s.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintln(out, s.Render(t))
	return err
}
