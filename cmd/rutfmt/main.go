// Command rutfmt cleans, formats and validates Chilean RUTs.
//
//	rutfmt [-json] [-check] [-watch] [values...]
//
// Values are read one per line from stdin when none are given. With -watch
// every stdin line is treated as the current contents of an input box and a
// line is printed only when the cleaned value or its validity changes.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"rutkit/internal/control"
	"rutkit/internal/logging"
	"rutkit/pkg/rut"
)

type options struct {
	json  bool
	check bool
	watch bool
}

type line struct {
	Input     string `json:"input"`
	Cleaned   string `json:"cleaned"`
	Formatted string `json:"formatted"`
	Valid     bool   `json:"valid"`
	Message   string `json:"message,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rutfmt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.BoolVar(&o.json, "json", false, "print one JSON object per value")
	fs.BoolVar(&o.check, "check", false, "exit with status 1 when any value is invalid")
	fs.BoolVar(&o.watch, "watch", false, "treat stdin lines as successive input states")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logging.InitFromEnv()

	var (
		invalid bool
		err     error
	)
	switch {
	case o.watch:
		invalid, err = watch(stdin, stdout, o)
	case fs.NArg() > 0:
		for _, v := range fs.Args() {
			if !emit(stdout, v, rut.Evaluate(v), o) {
				invalid = true
			}
		}
	default:
		invalid, err = eachLine(stdin, func(v string) bool { return emit(stdout, v, rut.Evaluate(v), o) })
	}
	if err != nil {
		logging.L().Error("rutfmt: read input", "err", err)
		return 2
	}
	if o.check && invalid {
		return 1
	}
	return 0
}

// eachLine calls fn per stdin line and reports whether any call returned false.
func eachLine(r io.Reader, fn func(string) bool) (bool, error) {
	sc := bufio.NewScanner(r)
	failed := false
	for sc.Scan() {
		if !fn(sc.Text()) {
			failed = true
		}
	}
	return failed, sc.Err()
}

func watch(r io.Reader, w io.Writer, o options) (bool, error) {
	var (
		input   string
		changed bool
	)
	c := control.New(func() { changed = true })
	defer c.Destroy()
	c.UpdateView(control.Props{})
	c.SetFocused(true)

	_, err := eachLine(r, func(v string) bool {
		input, changed = v, false
		c.Input(v)
		if changed {
			out := c.Outputs()
			emit(w, input, rut.Result{Cleaned: out.Value, Formatted: c.View().Text, Valid: out.Valid}, o)
		}
		return true
	})
	return !c.Outputs().Valid, err
}

// emit prints one result and returns its validity.
func emit(w io.Writer, input string, res rut.Result, o options) bool {
	if o.json {
		b, _ := json.Marshal(line{
			Input:     input,
			Cleaned:   res.Cleaned,
			Formatted: res.Formatted,
			Valid:     res.Valid,
			Message:   res.Message(),
		})
		fmt.Fprintln(w, string(b))
		return res.Valid
	}
	if msg := res.Message(); msg != "" {
		fmt.Fprintf(w, "%s\t%s\n", res.Formatted, msg)
	} else {
		fmt.Fprintln(w, res.Formatted)
	}
	return res.Valid
}
