package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/gousb"
	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"golang.org/x/time/rate"

	yml "github.com/go-yaml/yaml"

	"github.com/kaoqibutaitou/aoa-port-forward/accessory"
	"github.com/kaoqibutaitou/aoa-port-forward/aoa"
	"github.com/kaoqibutaitou/aoa-port-forward/hotplug"
	"github.com/kaoqibutaitou/aoa-port-forward/monitor"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "dev"

	// ConfigFileName is what it sounds like
	ConfigFileName = "aoaforward.yml"
	k              = koanf.New(".")
)

// reconnectEvery paces re-open attempts when there is no uevent source.
const reconnectEvery = 5 * time.Second

func root() {
	str := `aoaforward bridges an Android device in USB accessory mode to local TCP
services, multiplexing the app's logical sockets onto loopback connections.

Usage:
	aoaforward run [vid-hex pid-hex]
	aoaforward <command>

Commands:
	run
	help
	mkconf
	conf
	version

run with no ids auto-detects any compatible Android vendor; with a pair it
pins that exact device.`
	fmt.Println(str)
}

func help() {
	str := `aoaforward is amenable to configuration via its aoaforward.yml file.  For a primer on
YAML, see https://yaml.org/start.html

When no configuration is provided, the defaults are used.  The command
mkconf generates the configuration file with the default values.  The
Monitor address, when set, serves /status and /sessions as JSON.`
	fmt.Println(str)
}

func defaults() config {
	return config{
		Port:     accessory.DefaultPort,
		Identity: aoa.DefaultIdentity(),
	}
}

type config struct {
	// Monitor is the address the HTTP status surface listens at; empty
	// disables it
	Monitor string `koanf:"monitor" yaml:"Monitor"`

	// Port is forwarded to until the app announces its own
	Port uint16 `koanf:"port" yaml:"Port"`

	// Identity holds the AOA identity strings sent during the handshake
	Identity aoa.Identity `koanf:"identity" yaml:"Identity"`
}

func setupconfig() {
	k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), kyaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func mkconf() {
	c := config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	k.Unmarshal("", &c)
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("aoaforward version %v\n", Version)
}

// parseTarget turns the two positional hex arguments into a pinned target.
func parseTarget(vidS, pidS string) (*aoa.Target, error) {
	vid, err := strconv.ParseUint(vidS, 16, 16)
	if err != nil {
		return nil, fmt.Errorf("vendor id %q is not 16-bit hex", vidS)
	}
	pid, err := strconv.ParseUint(pidS, 16, 16)
	if err != nil {
		return nil, fmt.Errorf("product id %q is not 16-bit hex", pidS)
	}
	t := &aoa.Target{VID: gousb.ID(vid), PID: gousb.ID(pid)}
	if err := aoa.Validate(*t); err != nil {
		return nil, err
	}
	return t, nil
}

// holder resolves the current runtime for the monitor across reconnects.
type holder struct {
	mu   sync.Mutex
	acc  *accessory.Accessory
	port uint16
}

func (h *holder) set(a *accessory.Accessory) {
	h.mu.Lock()
	h.acc = a
	h.mu.Unlock()
}

func (h *holder) Status() accessory.Status {
	h.mu.Lock()
	a := h.acc
	h.mu.Unlock()
	if a == nil {
		return accessory.Status{ForwardPort: h.port}
	}
	return a.Status()
}

func run(target *aoa.Target) {
	c := config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sigc
		log.Printf("received %v, exiting", s)
		cancel()
	}()

	h := &holder{port: c.Port}
	if c.Monitor != "" {
		mon := monitor.New(h)
		go func() {
			log.Println("monitor listening at", c.Monitor)
			if err := http.ListenAndServe(c.Monitor, mon.Router()); err != nil {
				log.Printf("monitor server: %v", err)
			}
		}()
	}

	limiter := rate.NewLimiter(rate.Every(reconnectEvery), 1)
	for ctx.Err() == nil {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		openAccessory(ctx, target, c, h)
		if ctx.Err() != nil {
			break
		}
		waitForDevice(ctx, target)
	}
}

// openAccessory runs one attach cycle: open, forward, tear down.  Errors
// end the cycle; the outer loop decides when to try again.
func openAccessory(ctx context.Context, target *aoa.Target, c config, h *holder) {
	spin := startSpinner()
	uctx := gousb.NewContext()
	defer uctx.Close()

	dev, err := aoa.Open(uctx, target, c.Identity)
	stopSpinner(spin)
	if err != nil {
		log.Printf("opening accessory: %v", err)
		return
	}

	acc := accessory.New(dev, c.Port)
	h.set(acc)
	defer h.set(nil)
	acc.Run(ctx)
}

/*waitForDevice blocks until a plausible device (re)attaches.

On Linux the uevent stream supplies attach events; ones from incompatible
vendors, or not matching a pinned target, are ignored and the wait
continues.  Elsewhere, or if the stream fails, it just returns and lets
the rate limiter pace the retry.
*/
func waitForDevice(ctx context.Context, target *aoa.Target) {
	for ctx.Err() == nil {
		ev, err := hotplug.Listen(ctx.Done())
		if err != nil {
			return
		}
		if !aoa.CompatibleVendors[gousb.ID(ev.VID)] {
			log.Printf("vid %04x not compatible, still waiting", ev.VID)
			continue
		}
		if target != nil && (gousb.ID(ev.VID) != target.VID || gousb.ID(ev.PID) != target.PID) {
			continue
		}
		return
	}
}

func main() {
	args := os.Args[1:]
	// bare invocation auto-detects any compatible vendor
	if len(args) == 0 {
		setupconfig()
		run(nil)
		return
	}

	cmd := strings.ToLower(args[0])
	switch cmd {
	case "help":
		root()
		help()
		return
	case "version":
		pversion()
		return
	}

	setupconfig()
	switch cmd {
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		args = args[1:]
	}

	switch len(args) {
	case 0:
		run(nil)
	case 2:
		target, err := parseTarget(args[0], args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		run(target)
	default:
		root()
		os.Exit(2)
	}
}
