// Package recovery turns the output of a failed run into hints for the
// operator: busy emulator ports, a stopped container, missing helper
// binaries and the like.
package recovery

import (
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/acolita/qemu-e2e/internal/driver"
	"github.com/acolita/qemu-e2e/internal/environment"
)

// Suggestion represents a recovery suggestion for a failed run.
type Suggestion struct {
	Problem     string   `json:"problem"`
	Category    string   `json:"category"` // emulator, container, network, helper, ssh, guest, config
	Commands    []string `json:"commands,omitempty"`
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"`
}

// Analyzer detects known failure signatures.
type Analyzer struct {
	rules []recoveryRule
}

type recoveryRule struct {
	name    string
	pattern *regexp.Regexp
	suggest func(matches []string) *Suggestion
}

// NewAnalyzer creates a new analyzer with the default rules.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		rules: defaultRules(),
	}
}

// Analyze examines output and returns suggestions, most confident first.
// Each rule contributes at most one suggestion.
func (a *Analyzer) Analyze(output string) []*Suggestion {
	if strings.TrimSpace(output) == "" {
		return nil
	}

	var suggestions []*Suggestion
	for _, rule := range a.rules {
		if matches := rule.pattern.FindStringSubmatch(output); matches != nil {
			if s := rule.suggest(matches); s != nil {
				suggestions = append(suggestions, s)
			}
		}
	}

	slices.SortStableFunc(suggestions, func(x, y *Suggestion) int {
		switch {
		case x.Confidence > y.Confidence:
			return -1
		case x.Confidence < y.Confidence:
			return 1
		}
		return 0
	})
	return suggestions
}

// AnalyzeError analyzes the message of err together with the console output
// carried by a launch or step failure in its chain.
func (a *Analyzer) AnalyzeError(err error) []*Suggestion {
	if err == nil {
		return nil
	}
	return a.Analyze(failureText(err))
}

func failureText(err error) string {
	var b strings.Builder
	b.WriteString(err.Error())

	var launchErr *environment.LaunchError
	if errors.As(err, &launchErr) && launchErr.Output != "" {
		b.WriteByte('\n')
		b.WriteString(launchErr.Output)
	}
	var stepErr *driver.StepError
	if errors.As(err, &stepErr) && stepErr.Verdict.Output != "" {
		b.WriteByte('\n')
		b.WriteString(stepErr.Verdict.Output)
	}
	return b.String()
}

func defaultRules() []recoveryRule {
	return []recoveryRule{
		{
			name:    "emulator_ports_busy",
			pattern: regexp.MustCompile(`(?i)(could not set up host forwarding rule|address already in use)`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Emulator ports are already taken",
					Category:    "emulator",
					Commands:    []string{"killall qemu-system-x86_64", "make stop_docker"},
					Explanation: "Another emulator from an earlier run still holds the forwarded ports. Stop it, or enable runner.preclean.",
					Confidence:  0.9,
				}
			},
		},
		{
			name:    "docker_daemon",
			pattern: regexp.MustCompile(`(?i)cannot connect to the docker daemon`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Docker is not running",
					Category:    "container",
					Commands:    []string{"sudo systemctl start docker", "qemu-e2e --mode local run <scenario>"},
					Explanation: "Container mode needs the Docker daemon. Start it or run in local mode.",
					Confidence:  0.9,
				}
			},
		},
		{
			name:    "container_missing",
			pattern: regexp.MustCompile(`(?i)(no such container|container \S+ is not running)`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Builder container is not running",
					Category:    "container",
					Commands:    []string{"docker ps -a", "make run_docker"},
					Explanation: "The helper shell is opened inside the builder container, which must be up.",
					Confidence:  0.85,
				}
			},
		},
		{
			name:    "qemu_missing",
			pattern: regexp.MustCompile(`(?i)qemu-system-x86_64:?\s*(command )?not found`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Problem:     "QEMU is not installed",
					Category:    "emulator",
					Commands:    []string{"sudo apt-get install qemu-system-x86", "brew install qemu"},
					Explanation: "Local mode runs qemu-system-x86_64 from PATH.",
					Confidence:  0.85,
				}
			},
		},
		{
			name:    "kvm_access",
			pattern: regexp.MustCompile(`(?i)could not access kvm kernel module|failed to initialize kvm`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Problem:     "KVM is not accessible",
					Category:    "emulator",
					Commands:    []string{"ls -l /dev/kvm", "sudo usermod -aG kvm $USER"},
					Explanation: "The emulator was asked to use KVM but the current user cannot open /dev/kvm.",
					Confidence:  0.75,
				}
			},
		},
		{
			name:    "make_target",
			pattern: regexp.MustCompile("(?i)no rule to make target [`'‘\"]?([\\w./-]+?)[`'’\"]?[,.]"),
			suggest: func(matches []string) *Suggestion {
				return &Suggestion{
					Problem:     "Makefile has no target " + matches[1],
					Category:    "config",
					Commands:    []string{"make -C <root_dir> -n " + matches[1]},
					Explanation: "The launch command runs make in root_dir. Point root_dir at the liumOS checkout.",
					Confidence:  0.8,
				}
			},
		},
		{
			name:    "helper_binary_missing",
			pattern: regexp.MustCompile(`(?i)(\S+\.bin):\s*(no such file or directory|not found)`),
			suggest: func(matches []string) *Suggestion {
				return &Suggestion{
					Problem:     "Helper program " + matches[1] + " is missing",
					Category:    "helper",
					Commands:    []string{"make -C app", "qemu-e2e list --json"},
					Explanation: "Host-side test programs must be built, and APP_DIR must match the mode (app locally, /liumos/app in the container).",
					Confidence:  0.8,
				}
			},
		},
		{
			name:    "ssh_auth",
			pattern: regexp.MustCompile(`(?i)(unable to authenticate|permission denied \(publickey)`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Problem:     "SSH helper authentication failed",
					Category:    "ssh",
					Commands:    []string{"qemu-e2e keyring set", "ssh-add <key>"},
					Explanation: "Store the helper password in the keyring, load the key into the agent, or set helper.ssh.key_path.",
					Confidence:  0.8,
				}
			},
		},
		{
			name:    "ssh_host_key",
			pattern: regexp.MustCompile(`(?i)knownhosts: key (is unknown|mismatch)`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Problem:     "SSH helper host key is not trusted",
					Category:    "ssh",
					Commands:    []string{"ssh-keyscan -H <host> >> ~/.ssh/known_hosts"},
					Explanation: "The helper host is missing from known_hosts or its key changed.",
					Confidence:  0.85,
				}
			},
		},
		{
			name:    "helper_password_prompt",
			pattern: regexp.MustCompile(`(?im)(\[sudo\] password for \S+|password( for \S+)?:)\s*$`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Problem:     "A console is waiting for a password",
					Category:    "helper",
					Commands:    []string{"sudo visudo", "qemu-e2e keyring set"},
					Explanation: "Steps never answer password prompts. Allow the command without a password (NOPASSWD) or drop sudo from the step.",
					Confidence:  0.7,
				}
			},
		},
		{
			name:    "console_refused",
			pattern: regexp.MustCompile(`(?i)(dial|open).*connection refused`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Console port is not listening",
					Category:    "network",
					Commands:    []string{"ss -ltn"},
					Explanation: "The emulator reached its monitor prompt but the console socket was not up yet, or it listens on another address. Check guest.address.",
					Confidence:  0.6,
				}
			},
		},
		{
			name:    "guest_crash",
			pattern: regexp.MustCompile(`(?i)(kernel panic|page fault|#GP|triple fault)`),
			suggest: func(_ []string) *Suggestion {
				return &Suggestion{
					Problem:     "Guest kernel crashed",
					Category:    "guest",
					Commands:    []string{"qemu-e2e run --debug <scenario>"},
					Explanation: "The guest printed a fault. Enable recording to keep the full console transcript.",
					Confidence:  0.5,
				}
			},
		},
	}
}
