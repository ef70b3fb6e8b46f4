package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/usecase/memory"
)

func significanceLabel(s *int) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *s)
}

// oneLine collapses newlines so a memory fits in one row
func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func printMemories(w io.Writer, memories []*model.Memory) {
	for _, m := range memories {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.CreatedAt.Format(time.RFC3339), m.Kind, significanceLabel(m.Significance), oneLine(m.Text))
	}
}

func printRecalled(w io.Writer, out *memory.RetrieveOutput) {
	if len(out.Memories) == 0 {
		fmt.Fprintln(w, "No memories found")
		return
	}
	for _, s := range out.Memories {
		fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\t%s\n",
			s.Score, s.Memory.ID, s.Memory.Kind, significanceLabel(s.Memory.Significance), oneLine(s.Memory.Text))
	}
	if len(out.FailedIDs) > 0 {
		fmt.Fprintf(w, "warning: %d memories could not be marked as accessed\n", len(out.FailedIDs))
	}
}

func errWriter(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}

// startSpinner shows progress on w until Stop is called
func startSpinner(w io.Writer, suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(errWriter(w)))
	s.Suffix = " " + suffix
	s.Start()
	return s
}
