// Command mailbox-sim runs the node application on the host against a
// simulated accelerometer, an in-memory LCD and a console radio.
//
// Commands are read from stdin, one per line:
//
//	accel <x> <y> <z>     set the acceleration in g
//	tilt <1..6>           lay the enclosure on a face
//	in <°C> | out <°C>    deliver a temperature update
//	notify true|false     deliver a notification update
//	click                 press and release the button
//	advance <duration>    move the clock, e.g. 5s or 1h
//	show | state | faults | help | quit
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"mailbox-monitor/services/config"
	"mailbox-monitor/x/logx"
)

func main() {
	cfgPath := flag.String("config", "", "YAML configuration overlay")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log := logx.New(os.Stderr, cfg.Log.Level)

	m, err := newSim(cfg, os.Stdout, log)
	if err != nil {
		log.Error("sim init failed", "err", err)
		os.Exit(1)
	}
	defer m.Close()

	fmt.Fprintln(os.Stdout, "mailbox-sim: type help for commands")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stdout, "> ")
		if !sc.Scan() {
			return
		}
		if quit := m.Exec(sc.Text()); quit {
			return
		}
	}
}
