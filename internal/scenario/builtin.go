package scenario

import "sort"

// Payload is the message the UDP scenarios send between guest and helper.
const Payload = "LIUMOS_E2E_TEST_MESSAGE"

// Builtins returns the scenarios shipped with the harness. Helper commands
// refer to ${APP_DIR}, which differs between local and container mode.
func Builtins() []Scenario {
	scenarios := []Scenario{
		ipAssignment(),
		pingToRouter(),
		udpClient(),
		udpServer(),
		httpClient(),
	}
	for i := range scenarios {
		scenarios[i].Source = "builtin"
	}
	return scenarios
}

// ipAssignment checks the address the guest got from QEMU's user network.
func ipAssignment() Scenario {
	return Scenario{
		Name:        "ip_assignment",
		Description: "Guest reports the address, MAC, mask and gateway from user-mode networking",
		Steps: []Step{
			{
				On:     TargetGuest,
				Send:   "ip",
				Expect: "10.0.2.15 eth 52:54:00:12:34:56 mask 255.255.255.0 gateway 10.0.2.2",
			},
		},
	}
}

func pingToRouter() Scenario {
	return Scenario{
		Name:        "ping_to_router",
		Description: "Guest pings the virtual router and receives an echo reply",
		Steps: []Step{
			{
				On:     TargetGuest,
				Send:   "ping.bin 10.0.2.2",
				Expect: "ICMP packet received from 10.0.2.2 ICMP Type = 0",
			},
		},
	}
}

// udpClient sends a datagram from the guest to a server on the helper.
func udpClient() Scenario {
	return Scenario{
		Name:        "udp_client",
		Description: "Guest UDP client reaches a UDP server on the host",
		Steps: []Step{
			{
				Name:   "start server",
				On:     TargetHelper,
				Send:   "${APP_DIR}/udpserver/udpserver.bin 8888",
				Expect: "Listening port: 8888",
			},
			{
				Name:   "send datagram",
				On:     TargetGuest,
				Send:   "udpclient.bin 10.0.2.2 8888 " + Payload,
				Expect: "Sent size: 24",
			},
			{
				Name:   "receive datagram",
				On:     TargetHelper,
				Expect: Payload,
			},
		},
	}
}

// udpServer is the reverse of udpClient. Each client reports its own byte
// count for the same payload: 24 from the guest, 23 from the host.
func udpServer() Scenario {
	return Scenario{
		Name:        "udp_server",
		Description: "Host UDP client reaches a UDP server in the guest",
		Steps: []Step{
			{
				Name:   "start server",
				On:     TargetGuest,
				Send:   "udpserver.bin 8889",
				Expect: "Listening port: 8889",
			},
			{
				Name:   "send datagram",
				On:     TargetHelper,
				Send:   "${APP_DIR}/udpclient/udpclient.bin 127.0.0.1 8889 " + Payload,
				Expect: "Sent size: 23",
			},
			{
				Name:   "receive datagram",
				On:     TargetGuest,
				Expect: Payload,
			},
		},
	}
}

func httpClient() Scenario {
	return Scenario{
		Name:        "http_client",
		Description: "Guest HTTP client fetches a page from an HTTP server on the host",
		Steps: []Step{
			{
				Name:   "start server",
				On:     TargetHelper,
				Send:   "${APP_DIR}/httpserver/httpserver.bin --port 8888",
				Expect: "Listening port: 8888",
			},
			{
				Name:   "request",
				On:     TargetGuest,
				Send:   "httpclient.bin --ip 10.0.2.2 --port 8888 --path /index.html",
				Expect: "HTTP/1.1 200 OK",
			},
			{
				Name:   "body",
				On:     TargetGuest,
				Expect: "This is a sample paragraph.",
			},
		},
	}
}

// Catalog is a set of scenarios addressable by name.
type Catalog struct {
	byName map[string]Scenario
}

// NewCatalog builds a catalog. Later scenarios replace earlier ones with the
// same name, so files can override built-ins.
func NewCatalog(scenarios ...Scenario) *Catalog {
	c := &Catalog{byName: make(map[string]Scenario)}
	for _, s := range scenarios {
		c.byName[s.Name] = s
	}
	return c
}

// Get returns the named scenario.
func (c *Catalog) Get(name string) (Scenario, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// Names returns all scenario names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every scenario, sorted by name.
func (c *Catalog) All() []Scenario {
	names := c.Names()
	out := make([]Scenario, len(names))
	for i, name := range names {
		out[i] = c.byName[name]
	}
	return out
}
