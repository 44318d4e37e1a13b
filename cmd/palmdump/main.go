// Command palmdump inspects Palmtree run data files.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/palmtree-bci/go-palmtree/palmtree"
)

var cli struct {
	Path    string `arg:"" help:"Run data file (.src, .dat or plugin data)." type:"existingfile"`
	Data    bool   `help:"Decode the sample data, not just the header." short:"d"`
	Rows    int    `help:"Maximum number of decoded rows to print." default:"10"`
	Verbose bool   `help:"Log decode warnings." short:"v"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("palmdump"),
		kong.Description("Dump the header and sample data of a Palmtree run data file."),
		kong.UsageOnError(),
	)

	log := zerolog.Nop()
	if cli.Verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	h, m, err := palmtree.Read(cli.Path, cli.Data, palmtree.WithLogger(log))
	if err != nil {
		if h != nil {
			printHeader(h)
		}
		fmt.Fprintf(os.Stderr, "palmdump: %v\n", err)
		os.Exit(1)
	}

	printHeader(h)
	if cli.Data {
		printSamples(h, m)
	}
}

func printHeader(h *palmtree.Header) {
	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"Field", "Value"})
	t.Append([]string{"file size", fmt.Sprint(h.FileSize)})
	t.Append([]string{"version", fmt.Sprint(h.Version)})
	t.Append([]string{"code", h.Code})
	t.Append([]string{"kind", h.Kind().String()})
	if h.Epochs != nil {
		t.Append([]string{"run start epoch", fmt.Sprint(h.Epochs.RunStart)})
		t.Append([]string{"file start epoch", fmt.Sprint(h.Epochs.FileStart)})
	}
	if h.IncludesSourceInputTime != nil {
		t.Append([]string{"source input time", fmt.Sprint(*h.IncludesSourceInputTime)})
	}
	t.Append([]string{"sample rate", fmt.Sprint(h.SampleRate)})
	t.Append([]string{"playback streams", fmt.Sprint(h.NumPlaybackStreams)})
	t.Append([]string{"columns", fmt.Sprint(h.NumColumns)})
	t.Append([]string{"data start", fmt.Sprint(h.PosDataStart)})
	if h.Geometry != nil {
		t.Append([]string{"row size", fmt.Sprint(h.Geometry.RowSize)})
		t.Append([]string{"rows", fmt.Sprint(h.Geometry.NumRows)})
	}
	if h.Totals != nil {
		t.Append([]string{"total samples", fmt.Sprint(h.Totals.Samples)})
		t.Append([]string{"total packages", fmt.Sprint(h.Totals.Packages)})
	}
	t.Render()

	if len(h.Streams) > 0 {
		st := tablewriter.NewWriter(os.Stdout)
		st.SetHeader([]string{"Stream", "Data Type", "Samples/Package"})
		for i, s := range h.Streams {
			st.Append([]string{
				fmt.Sprint(i),
				fmt.Sprint(s.DataType),
				fmt.Sprint(s.SamplesPerPackage),
			})
		}
		st.Render()
	}
}

func printSamples(h *palmtree.Header, m *mat.Dense) {
	if m == nil {
		fmt.Println("no sample data")
		return
	}
	rows, cols := m.Dims()
	n := rows
	if cli.Rows > 0 && n > cli.Rows {
		n = cli.Rows
	}

	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader(h.DataColumns())
	for i := 0; i < n; i++ {
		row := make([]string, cols)
		for j := 0; j < cols; j++ {
			row[j] = fmt.Sprintf("%g", m.At(i, j))
		}
		t.Append(row)
	}
	t.Render()
	if n < rows {
		fmt.Printf("... %d of %d rows shown\n", n, rows)
	}
}
