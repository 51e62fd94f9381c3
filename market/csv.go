package market

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// LoadCSV reads a bar file for one symbol and timeframe. Files ending in
// .xz or .lzma are decompressed on the fly.
func LoadCSV(path, symbol, timeframe string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	switch {
	case strings.HasSuffix(path, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("xz %s: %w", path, err)
		}
		r = xr
	case strings.HasSuffix(path, ".lzma"):
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("lzma %s: %w", path, err)
		}
		r = lr
	}

	s, err := ReadCSV(r, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadCSV parses "time,open,high,low,close[,volume]". The header row is
// required; column order follows the header. Times are RFC3339, "2006-01-02 15:04:05"
// (UTC) or unix seconds.
func ReadCSV(r io.Reader, symbol, timeframe string) (*Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"time", "open", "high", "low", "close"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("missing column %q", need)
		}
	}
	volCol, hasVol := col["volume"]
	if !hasVol {
		volCol, hasVol = col["tick_volume"]
	}

	s := &Series{Symbol: NormalizeSymbol(symbol), Timeframe: timeframe}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseTime(rec[col["time"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var b Bar
		b.Time = ts
		fields := []struct {
			name string
			dst  *float64
		}{
			{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
		}
		for _, fld := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[fld.name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, fld.name, err)
			}
			*fld.dst = v
		}
		if hasVol && volCol < len(rec) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(rec[volCol]), 64); err == nil {
				b.Volume = v
			}
		}
		s.Bars = append(s.Bars, b)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", v, time.UTC); err == nil {
		return t, nil
	}
	if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", v)
}
