package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/omochice/toy-screen-stream/internal/controller"
)

type promptTarget interface {
	SetDesiredQuality(q uint32) error
	Stats() controller.Stats
}

// prompt reads operator commands until EOF or quit.
func prompt(r io.Reader, w io.Writer, t promptTarget) {
	fmt.Fprintln(w, "Commands: quality <1-100>, stats, quit")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return
		case "stats":
			s := t.Stats()
			fmt.Fprintf(w, "metadata=%d decoded=%d presented=%d stale=%d out_of_order=%d codec_errors=%d\n",
				s.Metadata, s.Decoded, s.Presented, s.Stale, s.OutOfOrder, s.CodecErrors)
		case "quality", "q":
			if len(fields) != 2 {
				fmt.Fprintln(w, "usage: quality <1-100>")
				continue
			}
			q, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				fmt.Fprintf(w, "not a number: %s\n", fields[1])
				continue
			}
			if err := t.SetDesiredQuality(uint32(q)); err != nil {
				fmt.Fprintf(w, "rejected: %v\n", err)
				continue
			}
			fmt.Fprintf(w, "quality -> %d\n", q)
		default:
			fmt.Fprintf(w, "unknown command: %s\n", fields[0])
		}
	}
}
