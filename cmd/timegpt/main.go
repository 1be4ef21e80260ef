// Command timegpt forecasts time series from a CSV file using the
// TimeGPT API. The input needs a time column and a target column, and
// may carry a series id column plus numeric exogenous columns.
//
//	timegpt -input history.csv -horizon 14 -freq D -level 80,95
//
// The API key comes from TIMEGPT_API_KEY or NIXTLA_API_KEY, loaded
// from the environment or a .env file.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/PyQuantSharp/timegpt"
	"github.com/PyQuantSharp/timegpt/config"
	"github.com/PyQuantSharp/timegpt/tabular"
	"github.com/PyQuantSharp/timegpt/timedataset"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func main() {
	if err := run(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	input := flag.String("input", "", "input CSV path, - for stdin")
	output := flag.String("output", "", "output CSV path, defaults to stdout")
	horizon := flag.Int("horizon", 1, "number of future points to forecast")
	freq := flag.String("freq", "", "frequency alias, inferred when empty")
	model := flag.String("model", "", "model name")
	levels := flag.String("level", "", "comma separated interval levels, e.g. 80,95")
	idCol := flag.String("id-col", "unique_id", "series id column")
	timeCol := flag.String("time-col", "ds", "time column")
	targetCol := flag.String("target-col", "y", "target column")
	configPath := flag.String("config", "", "optional YAML config path")
	partitions := flag.Int("partitions", 0, "split the input into this many requests")
	validate := flag.Bool("validate", false, "check the API key and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *partitions > 0 {
		cfg.NumPartitions = *partitions
	}
	client, err := timegpt.New(cfg.ClientOptions())
	if err != nil {
		return err
	}
	ctx := context.Background()

	if *validate {
		ok, err := client.ValidateAPIKey(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("API key rejected")
		}
		fmt.Println("API key valid")
		return nil
	}

	if *input == "" {
		return fmt.Errorf("-input is required")
	}
	frame, err := readCSV(*input, *timeCol)
	if err != nil {
		return err
	}

	opt := &timegpt.ForecastOptions{
		Model: *model,
		Input: timedataset.Options{
			IDCol:     *idCol,
			TimeCol:   *timeCol,
			TargetCol: *targetCol,
		},
	}
	if *freq != "" {
		f, err := timedataset.ParseFrequency(*freq)
		if err != nil {
			return err
		}
		opt.Input.Freq = f
	}
	if *levels != "" {
		for _, s := range strings.Split(*levels, ",") {
			lvl, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return fmt.Errorf("parsing level %q: %w", s, err)
			}
			opt.Level = append(opt.Level, lvl)
		}
	}

	res, err := client.Forecast(ctx, frame, *horizon, opt)
	if err != nil {
		return err
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return writeCSV(out, res.Frame)
}

// readCSV loads a CSV with a header row into a frame. The time column
// becomes a time column; other columns become floats when every value
// parses, strings otherwise.
func readCSV(path, timeCol string) (*tabular.Frame, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv needs a header row and at least one data row")
	}
	header := records[0]
	rows := records[1:]

	cols := make([]tabular.Column, 0, len(header))
	for j, name := range header {
		vals := make([]string, len(rows))
		for i, rec := range rows {
			if j >= len(rec) {
				return nil, fmt.Errorf("row %d has %d fields, want %d", i+2, len(rec), len(header))
			}
			vals[i] = rec[j]
		}
		col, err := buildColumn(name, vals, name == timeCol)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return tabular.NewFrame(cols...)
}

func buildColumn(name string, vals []string, isTime bool) (tabular.Column, error) {
	if isTime {
		times := make([]time.Time, len(vals))
		for i, v := range vals {
			ts, err := parseTime(v)
			if err != nil {
				return tabular.Column{}, fmt.Errorf("column %q row %d: %w", name, i+2, err)
			}
			times[i] = ts
		}
		return tabular.Times(name, times), nil
	}

	floats := make([]float64, len(vals))
	numeric := true
	for i, v := range vals {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			numeric = false
			break
		}
		floats[i] = f
	}
	if numeric {
		return tabular.Floats(name, floats), nil
	}
	return tabular.Strings(name, vals), nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func writeCSV(w io.Writer, frame *tabular.Frame) error {
	cw := csv.NewWriter(w)
	names := frame.Columns()
	if err := cw.Write(names); err != nil {
		return err
	}
	record := make([]string, len(names))
	for i := 0; i < frame.Len(); i++ {
		for j, name := range names {
			col, _ := frame.Column(name)
			record[j] = col.StringAt(i)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
