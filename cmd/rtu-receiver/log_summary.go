package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

type logSummary struct {
	Lines         int
	Raw           int
	Decoded       int
	Errors        int
	Invalid       int
	ErrorReasons  map[string]int
	RecordKinds   map[string]int
	DecodedByIMEI map[string]int
}

// summaryLine holds the fields of any of the three streams that the summary
// cares about.
type summaryLine struct {
	Stage   *string `json:"stage"`
	Reason  string  `json:"reason"`
	IMEI    *string `json:"imei"`
	Records []struct {
		Type string `json:"type"`
	} `json:"records"`
	Datagram *string `json:"datagram_hex"`
}

func summarizeLog(r io.Reader) (logSummary, error) {
	s := logSummary{
		ErrorReasons:  map[string]int{},
		RecordKinds:   map[string]int{},
		DecodedByIMEI: map[string]int{},
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s.Lines++

		var l summaryLine
		if err := json.Unmarshal([]byte(line), &l); err != nil {
			s.Invalid++
			continue
		}
		switch {
		case l.Stage != nil:
			s.Errors++
			s.ErrorReasons[*l.Stage+":"+l.Reason]++
		case l.Records != nil:
			s.Decoded++
			if l.IMEI != nil {
				s.DecodedByIMEI[*l.IMEI]++
			}
			for _, rec := range l.Records {
				s.RecordKinds[rec.Type]++
			}
		case l.Datagram != nil:
			s.Raw++
		default:
			s.Invalid++
		}
	}
	return s, sc.Err()
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := summarizeLog(f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "lines: %d\n", s.Lines)
	fmt.Fprintf(w, "raw: %d\n", s.Raw)
	fmt.Fprintf(w, "decoded: %d\n", s.Decoded)
	fmt.Fprintf(w, "errors: %d\n", s.Errors)
	fmt.Fprintf(w, "invalid_lines: %d\n", s.Invalid)
	printCounts(w, "errors_by_reason", s.ErrorReasons)
	printCounts(w, "records_by_kind", s.RecordKinds)
	printCounts(w, "decoded_by_imei", s.DecodedByIMEI)
	return nil
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, counts[k])
	}
}
