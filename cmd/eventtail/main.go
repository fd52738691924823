// Command eventtail dials the local debug event relay and pretty-prints
// scan/sync events as they arrive, auto-reconnecting on disconnect.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"
)

type tailEvent map[string]any

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "event relay TCP address")
	pretty := flag.Bool("pretty", true, "pretty print JSON events")
	filterType := flag.String("type", "", "only print events whose type contains this substring")
	flag.Parse()

	for {
		if err := run(*addr, *pretty, *filterType); err != nil {
			log.Printf("[eventtail] disconnected: %v", err)
		}
		time.Sleep(1 * time.Second)
	}
}

func run(addr string, pretty bool, filterType string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	log.Printf("[eventtail] connected to %s", addr)

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Bytes()

		var obj tailEvent
		if err := json.Unmarshal(line, &obj); err != nil {
			fmt.Println(string(line))
			continue
		}
		if filterType != "" {
			t, _ := obj["type"].(string)
			if !strings.Contains(t, filterType) {
				continue
			}
		}
		if !pretty {
			fmt.Println(string(line))
			continue
		}
		b, _ := json.MarshalIndent(obj, "", "  ")
		fmt.Println(string(b))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}
