package report

import (
	"fmt"
	"strings"

	"github.com/netcrate/nexa/internal/version"
)

const art = `
 _ __   _____  ____ _
| '_ \ / _ \ \/ / _' |
| | | |  __/>  < (_| |
|_| |_|\___/_/\_\__,_|
`

// PrintBanner writes the startup art and the scan header
func (r *Renderer) PrintBanner(target string, ports []int, concurrency int, profile string) {
	fmt.Fprintln(r.w, r.paint(r.title, strings.TrimPrefix(art, "\n")+"  "+version.GetVersion().Short()))
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "Target:      %s\n", target)
	fmt.Fprintf(r.w, "Ports:       %d\n", len(ports))
	fmt.Fprintf(r.w, "Concurrency: %d (profile %s)\n", concurrency, profile)
	fmt.Fprintln(r.w)
}
