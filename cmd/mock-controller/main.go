// mock-controller simulates a GRBL/FluidNC-class motion controller on a
// TCP socket for end-to-end runs without the rig. It speaks the same
// line protocol the host expects:
// - status reports on '?' and automatically while axes move
// - ok/error acks in strict arrival order
// - $H homing with a realistic delay, $X unlock, G10 L20 offset clearing
// - feed hold / resume / soft reset immediate bytes
//
// Usage:
//
//	mock-controller -listen 127.0.0.1:2323 -home-delay 2s
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	listenAddr     = flag.String("listen", "127.0.0.1:2323", "TCP listen address")
	homeDelay      = flag.Duration("home-delay", 2*time.Second, "simulated homing cycle duration")
	reportInterval = flag.Duration("report-interval", 200*time.Millisecond, "auto status report interval while moving")
	moveSpeed      = flag.Float64("move-speed", 50, "simulated travel speed, units per second")
	failHoming     = flag.Bool("fail-homing", false, "raise ALARM:9 instead of completing homing")
)

const axisCount = 4

var axisNames = [axisCount]string{"X", "Y", "Z", "C"}

// sim is one simulated controller session.
type sim struct {
	conn net.Conn

	mu      sync.Mutex
	state   string // Idle, Run, Home, Hold, Alarm
	pos     [axisCount]float64
	target  [axisCount]float64
	wco     [axisCount]float64
	moving  bool
	held    bool
	alarmed bool
}

func main() {
	flag.Parse()

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mock-controller: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("mock-controller listening on %s\n", *listenAddr)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		ln.Close()
		os.Exit(0)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s := &sim{conn: conn, state: "Idle"}
		go s.run()
	}
}

func (s *sim) run() {
	defer s.conn.Close()
	fmt.Printf("client connected: %s\n", s.conn.RemoteAddr())

	s.send("Grbl 1.1h ['$' for help]")

	go s.autoReport()

	r := bufio.NewReader(s.conn)
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			fmt.Printf("client gone: %s\n", s.conn.RemoteAddr())
			return
		}
		switch b {
		case '?':
			s.send(s.report())
		case '!':
			s.hold()
		case '~':
			s.resume()
		case 0x18:
			s.softReset()
		case '\r':
		case '\n':
			if len(line) > 0 {
				s.handleLine(strings.TrimSpace(string(line)))
				line = line[:0]
			}
		default:
			line = append(line, b)
		}
	}
}

func (s *sim) send(msg string) {
	s.conn.Write([]byte(msg + "\r\n"))
}

// report builds a status line from the current state.
func (s *sim) report() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "<%s|MPos:", s.stateWord())
	for i, v := range s.pos {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%.3f", v)
	}
	b.WriteString("|WCO:")
	for i, v := range s.wco {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%.3f", v)
	}
	b.WriteByte('>')
	return b.String()
}

func (s *sim) stateWord() string {
	switch {
	case s.alarmed:
		return "Alarm"
	case s.held:
		return "Hold:0"
	case s.state != "":
		return s.state
	default:
		return "Idle"
	}
}

// autoReport streams status lines while motion is in progress, the way
// FluidNC does with an auto-report interval configured.
func (s *sim) autoReport() {
	t := time.NewTicker(*reportInterval)
	defer t.Stop()
	for range t.C {
		s.mu.Lock()
		moving := s.moving
		s.mu.Unlock()
		if moving {
			s.send(s.report())
		}
	}
}

func (s *sim) handleLine(line string) {
	upper := strings.ToUpper(line)
	switch {
	case upper == "$X":
		s.mu.Lock()
		s.alarmed = false
		s.state = "Idle"
		s.mu.Unlock()
		s.send("[MSG:Caution: Unlocked]")
		s.send("ok")
	case strings.HasPrefix(upper, "$H"):
		s.home(upper[2:])
	case strings.HasPrefix(upper, "$J="):
		s.move(upper[3:], true)
	case strings.HasPrefix(upper, "G90 G1"), strings.HasPrefix(upper, "G90G1"):
		s.move(upper, false)
	case strings.HasPrefix(upper, "G91 G1"), strings.HasPrefix(upper, "G91G1"):
		s.move(upper, true)
	case strings.HasPrefix(upper, "G10 L20"):
		s.clearOffsets(upper)
	case strings.HasPrefix(upper, "$"):
		// Settings queries and the like: accepted, ignored.
		s.send("ok")
	default:
		// Unsupported word: GRBL error 20.
		s.send("error:20")
	}
}

// home blocks for the configured delay, emitting Home status reports,
// then zeroes the selected axes. The ack goes out only after the cycle
// completes, matching real firmware.
func (s *sim) home(axisSpec string) {
	s.mu.Lock()
	if s.alarmed {
		// Homing is allowed from alarm; it clears it.
		s.alarmed = false
	}
	s.state = "Home"
	s.mu.Unlock()

	done := time.After(*homeDelay)
	t := time.NewTicker(*reportInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.send(s.report())
		case <-done:
			if *failHoming {
				s.mu.Lock()
				s.alarmed = true
				s.state = "Alarm"
				s.mu.Unlock()
				s.send("ALARM:9")
				s.send("error:9")
				return
			}
			s.mu.Lock()
			for i := range s.pos {
				if axisSpec == "" || strings.Contains(axisSpec, axisNames[i]) {
					s.pos[i] = 0
				}
			}
			s.state = "Idle"
			s.mu.Unlock()
			s.send("ok")
			return
		}
	}
}

// move parses axis words, acks, and simulates travel at the configured
// speed. relative applies the words as deltas.
func (s *sim) move(words string, relative bool) {
	s.mu.Lock()
	if s.alarmed {
		s.mu.Unlock()
		s.send("error:9")
		return
	}
	target := s.pos
	for i, name := range axisNames {
		if v, ok := axisWord(words, name); ok {
			if relative {
				target[i] += v
			} else {
				target[i] = v
			}
		}
	}
	s.target = target
	s.moving = true
	s.state = "Run"
	s.mu.Unlock()

	s.send("ok")
	go s.travel()
}

// travel steps the position toward the target until it arrives.
func (s *sim) travel() {
	step := *moveSpeed * 0.05 // per 50ms tick
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for range t.C {
		s.mu.Lock()
		if s.held {
			s.mu.Unlock()
			continue
		}
		arrived := true
		for i := range s.pos {
			d := s.target[i] - s.pos[i]
			switch {
			case math.Abs(d) <= step:
				s.pos[i] = s.target[i]
			case d > 0:
				s.pos[i] += step
				arrived = false
			default:
				s.pos[i] -= step
				arrived = false
			}
		}
		if arrived {
			s.moving = false
			s.state = "Idle"
			s.mu.Unlock()
			s.send(s.report())
			return
		}
		s.mu.Unlock()
	}
}

// clearOffsets zeroes the work offset of each axis named with a 0 value.
func (s *sim) clearOffsets(words string) {
	s.mu.Lock()
	for i, name := range axisNames {
		if _, ok := axisWord(words, name); ok {
			s.wco[i] = s.pos[i]
		}
	}
	s.mu.Unlock()
	s.send("ok")
}

func (s *sim) hold() {
	s.mu.Lock()
	if s.moving {
		s.held = true
	}
	s.mu.Unlock()
}

func (s *sim) resume() {
	s.mu.Lock()
	s.held = false
	s.mu.Unlock()
}

// softReset aborts everything. A reset mid-motion loses steps, so real
// firmware comes back alarmed; mirror that.
func (s *sim) softReset() {
	s.mu.Lock()
	wasMoving := s.moving
	s.moving = false
	s.held = false
	s.target = s.pos
	if wasMoving {
		s.alarmed = true
		s.state = "Alarm"
	} else {
		s.state = "Idle"
	}
	s.mu.Unlock()

	s.send("Grbl 1.1h ['$' for help]")
	if wasMoving {
		s.send("ALARM:3")
	}
}

// axisWord extracts the numeric value following an axis letter, e.g.
// "X10.5" out of "G90 G1 X10.5 Y2 F1500".
func axisWord(words, name string) (float64, bool) {
	i := strings.Index(words, name)
	if i < 0 || i+1 >= len(words) {
		return 0, false
	}
	rest := words[i+1:]
	end := 0
	for end < len(rest) {
		c := rest[end]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(rest[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
