// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command avlshell is an interactive diagnostic REPL over one open
// avl-file store, in the style of lldb/lab/1/main.go and
// dbm/crash/main.go: a small driver that opens a store and lets an
// operator poke at it by hand. It is test/diagnostic tooling, not part
// of the on-disk format.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	avlfile "github.com/michael9422/avl-file"
)

func main() {
	path := flag.StringP("file", "f", "", "path to the avl-file store")
	payloadLen := flag.IntP("payload-len", "p", 64, "fixed record length")
	nKeys := flag.IntP("keys", "k", 1, "number of indexed keys")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "avlshell: --file is required")
		os.Exit(2)
	}

	cmp := func(key int, a, b []byte) int { return strings.Compare(string(a), string(b)) }
	store, err := avlfile.Open(*path, *payloadLen, *nKeys, cmp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "avlshell: open: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Printf("avlshell: %s (payload_len=%d keys=%d)\n", *path, *payloadLen, *nKeys)
	for {
		input, err := line.Prompt("avl> ")
		if err != nil {
			break
		}
		line.AppendHistory(input)
		dispatch(store, *payloadLen, strings.Fields(input))
	}
}

func dispatch(store *avlfile.Store, payloadLen int, args []string) {
	if len(args) == 0 {
		return
	}
	switch args[0] {
	case "insert":
		if len(args) < 2 {
			fmt.Println("usage: insert <payload>")
			return
		}
		if err := store.Insert(pad(args[1], payloadLen)); err != nil {
			fmt.Println("error:", err)
		}
	case "delete":
		if len(args) < 2 {
			fmt.Println("usage: delete <payload>")
			return
		}
		if err := store.Delete(pad(args[1], payloadLen)); err != nil {
			fmt.Println("error:", err)
		}
	case "find":
		if len(args) < 3 {
			fmt.Println("usage: find <key> <target>")
			return
		}
		key, _ := strconv.Atoi(args[1])
		payload, err := store.Find(key, []byte(args[2]))
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Printf("%q\n", payload)
	case "scan":
		if len(args) < 2 {
			fmt.Println("usage: scan <key>")
			return
		}
		key, _ := strconv.Atoi(args[1])
		res, err := store.Scan(key)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Printf("count=%d height=%d\n", res.Count, res.Height)
	case "squash":
		if err := store.Squash(); err != nil {
			fmt.Println("error:", err)
		}
	case "dump":
		out, err := store.Dump()
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Print(out)
	case "ticket":
		n, err := store.NextTicket()
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println(n)
	case "quit", "exit":
		os.Exit(0)
	default:
		fmt.Println("commands: insert delete find scan squash dump ticket quit")
	}
}

// pad right-pads s to the store's fixed payload length, cropping if too
// long, so operators can type short test values at the prompt.
func pad(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}
