package core

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/josephlewis42/rush/core/jobs"
	"github.com/josephlewis42/rush/core/shell"
	"github.com/pborman/getopt/v2"
	"golang.org/x/sys/unix"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// Cd is the cd shell builtin
func Cd(s *Shell, args []string) int {
	switch len(args) {
	case 1:
		home := s.Getvar(EnvHome)
		if home == "" {
			fmt.Fprintf(s.Err, "%s: HOME not set\n", args[0])
			return 1
		}
		args = append(args, home)
	case 2:
	default:
		fmt.Fprintf(s.Err, "%s: too many arguments\n", args[0])
		return 1
	}

	target, printDir := args[1], false
	if target == "-" {
		target = s.Getvar(EnvOldPWD)
		if target == "" {
			fmt.Fprintf(s.Err, "%s: OLDPWD not set\n", args[0])
			return 1
		}
		printDir = true
	}

	dir := s.abs(target)
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		fmt.Fprintf(s.Err, "%s: %s: %v\n", args[0], target, pathCause(err))
		return 1
	case !info.IsDir():
		fmt.Fprintf(s.Err, "%s: %s: not a directory\n", args[0], target)
		return 1
	}

	if err := s.Setvar(EnvOldPWD, s.Dir); err != nil {
		s.Logger.Printf("cd: %v", err)
	}
	s.Dir = dir
	if err := s.Setvar(EnvPWD, dir); err != nil {
		s.Logger.Printf("cd: %v", err)
	}
	if printDir {
		fmt.Fprintln(s.Out, dir)
	}
	return 0
}

// Pwd prints the working directory.
func Pwd(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "pwd",
		Short: "Print the name of the current working directory.",
	}
	return cmd.Run(s, args, func() int {
		fmt.Fprintln(s.Out, s.Dir)
		return 0
	})
}

var (
	unescapeOctal   = regexp.MustCompile(`\\0[0-8][0-8]?[0-8]?`)
	unescapeHex     = regexp.MustCompile(`\\x[0-9a-fA-F][0-9a-fA-F]?`)
	unescapeReplace = strings.NewReplacer(
		`\n`, "\n", // newline
		`\r`, "\r", // carriage return
		`\t`, "\t", // horizontal tab
		`\\`, `\`, // backslash literal
		`\b`, "\b", // backspace
		`\a`, "\a", // alert
		`\e`, "\x1b", // escape
		`\f`, "\f", // form feed
		`\v`, "\v", // vertical tab
	)
)

func unescape(s string) string {
	s = unescapeReplace.Replace(s)
	s = unescapeOctal.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseInt(arg[2:], 8, 8)
		if err != nil {
			return arg
		}
		return string(rune(out))
	})
	s = unescapeHex.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseInt(arg[2:], 16, 8)
		if err != nil {
			return arg
		}
		return string(rune(out))
	})
	return s
}

// Echo writes its arguments. Leading -n, -e and -ne style words are options;
// anything else, including unknown options, is printed.
func Echo(s *Shell, args []string) int {
	newline, escaped := true, false
	words := args[1:]
	for len(words) > 0 && isEchoFlag(words[0]) {
		for _, c := range words[0][1:] {
			switch c {
			case 'n':
				newline = false
			case 'e':
				escaped = true
			case 'E':
				escaped = false
			}
		}
		words = words[1:]
	}

	for i, arg := range words {
		if i > 0 {
			fmt.Fprint(s.Out, " ")
		}
		if escaped {
			arg = unescape(arg)
		}
		fmt.Fprint(s.Out, arg)
	}
	if newline {
		fmt.Fprintln(s.Out)
	}
	return 0
}

func isEchoFlag(arg string) bool {
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	return strings.Trim(arg[1:], "neE") == ""
}

// Type describes how each name would be run.
func Type(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "type [-a] NAME...",
		Short: "Display information about command type.",
	}
	all := cmd.Flags().Bool('a', "display all locations containing an executable named NAME")

	return cmd.Run(s, args, func() int {
		status := 0
		for _, name := range cmd.Flags().Args() {
			found := false
			if _, ok := s.Builtins[name]; ok {
				fmt.Fprintf(s.Out, "%s is a shell builtin\n", name)
				found = true
			}
			if !found || *all {
				paths := s.Paths.Resolve(name, s.Getvar(EnvPath), s.Dir)
				if !*all && len(paths) > 1 {
					paths = paths[:1]
				}
				for _, p := range paths {
					fmt.Fprintf(s.Out, "%s is %s\n", name, p)
					found = true
				}
			}
			if !found {
				fmt.Fprintf(s.Err, "%s: not found\n", name)
				status = 1
			}
		}
		return status
	})
}

// Export marks variables for inheritance by child processes.
func Export(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "export [-n] [-p] [NAME[=VALUE] ...]",
		Short: "Set export attribute for shell variables.",
	}
	unexport := cmd.Flags().Bool('n', "remove the export property from each NAME")
	list := cmd.Flags().Bool('p', "display a list of all exported variables")

	return cmd.Run(s, args, func() int {
		names := cmd.Flags().Args()
		if *list || len(names) == 0 {
			for _, entry := range sortedEnviron(s.Env.Environ()) {
				name, value, _ := strings.Cut(entry, "=")
				fmt.Fprintf(s.Out, "export %s=%s\n", name, strconv.Quote(value))
			}
			return 0
		}

		status := 0
		for _, arg := range names {
			name, value, hasValue := strings.Cut(arg, "=")
			var err error
			switch {
			case *unexport:
				err = s.Unexport(name)
			case hasValue:
				err = s.Export(name, &value)
			default:
				err = s.Export(name, nil)
			}
			if err != nil {
				fmt.Fprintf(s.Err, "%s: %v\n", args[0], err)
				status = 1
			}
		}
		return status
	})
}

func sortedEnviron(env []string) []string {
	out := append([]string(nil), env...)
	sort.Strings(out)
	return out
}

// Unset removes variables.
func Unset(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "unset [-fv] [NAME...]",
		Short: "Unset shell values and functions.",
	}
	opts := cmd.Flags()
	functions := opts.Bool('f', "treat NAME as a function")
	opts.Bool('v', "treat NAME as a variable")

	return cmd.Run(s, args, func() int {
		if *functions {
			// There are no shell functions to remove.
			return 0
		}
		status := 0
		for _, name := range opts.Args() {
			if !shell.IsName(name) {
				fmt.Fprintf(s.Err, "%s: `%s': not a valid identifier\n", args[0], name)
				status = 1
				continue
			}
			if err := s.Unsetvar(name); err != nil {
				fmt.Fprintf(s.Err, "%s: %v\n", args[0], err)
				status = 1
			}
		}
		return status
	})
}

// Exit quits the shell
func Exit(s *Shell, args []string) int {
	code := s.LastStatus
	switch len(args) {
	case 1:
	case 2:
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(s.Err, "%s: %s: numeric argument required\n", args[0], args[1])
			code = StatusUsage
		} else {
			code = n & 0xff
		}
	default:
		fmt.Fprintf(s.Err, "%s: too many arguments\n", args[0])
		return 1
	}
	s.exited = true
	s.exitCode = code
	return code
}

// Jobs lists the job table.
func Jobs(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "jobs [-lp] [JOBSPEC...]",
		Short: "Display status of jobs.",
	}
	long := cmd.Flags().Bool('l', "lists process IDs in addition to the normal information")
	pids := cmd.Flags().Bool('p', "lists process IDs only")

	return cmd.Run(s, args, func() int {
		s.Jobs.Reap()

		list := s.Jobs.Jobs()
		if specs := cmd.Flags().Args(); len(specs) > 0 {
			list = nil
			for _, spec := range specs {
				j, err := s.Jobs.Lookup(spec)
				if err != nil {
					fmt.Fprintf(s.Err, "%s: %v\n", args[0], err)
					return 1
				}
				list = append(list, j)
			}
		}

		for _, j := range list {
			switch {
			case *pids:
				for _, pid := range j.Pids() {
					fmt.Fprintln(s.Out, pid)
				}
			default:
				fmt.Fprintln(s.Out, s.formatJob(s.jobEvent(j), *long))
			}
		}
		return 0
	})
}

func jobArg(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return ""
}

// Fg resumes a job in the foreground and waits for it.
func Fg(s *Shell, args []string) int {
	if len(args) > 2 {
		fmt.Fprintf(s.Err, "%s: too many arguments\n", args[0])
		return StatusUsage
	}
	j, err := s.Jobs.Lookup(jobArg(args))
	if err != nil {
		fmt.Fprintf(s.Err, "%s: %v\n", args[0], err)
		return 1
	}
	fmt.Fprintln(s.Out, j.Command)
	status, err := s.Jobs.Foreground(j)
	if err != nil {
		fmt.Fprintf(s.Err, "%s: %v\n", args[0], err)
		return 1
	}
	return status
}

// Bg resumes stopped jobs in the background.
func Bg(s *Shell, args []string) int {
	specs := args[1:]
	if len(specs) == 0 {
		specs = []string{""}
	}
	status := 0
	for _, spec := range specs {
		j, err := s.Jobs.Lookup(spec)
		if err == nil {
			err = s.Jobs.Background(j)
		}
		if err != nil {
			fmt.Fprintf(s.Err, "%s: %v\n", args[0], err)
			status = 1
		}
	}
	return status
}

// Kill sends a signal to jobs or processes.
func Kill(s *Shell, args []string) int {
	const usage = "usage: kill [-s SIGSPEC | -SIGSPEC] PID | JOBSPEC ... or kill -l"

	sig := unix.SIGTERM
	targets := args[1:]
	if len(targets) > 0 {
		switch first := targets[0]; {
		case first == "-l":
			for i := 1; i < 32; i++ {
				if name := unix.SignalName(unix.Signal(i)); name != "" {
					fmt.Fprintf(s.Out, "%2d) %s\n", i, name)
				}
			}
			return 0
		case first == "-s" && len(targets) > 1:
			sig = parseSignal(targets[1])
			targets = targets[2:]
		case len(first) > 1 && first[0] == '-':
			sig = parseSignal(first[1:])
			targets = targets[1:]
		}
	}
	if sig == 0 || len(targets) == 0 {
		fmt.Fprintln(s.Err, usage)
		return StatusUsage
	}

	status := 0
	for _, target := range targets {
		if err := s.kill(target, sig); err != nil {
			fmt.Fprintf(s.Err, "%s: %v\n", args[0], err)
			status = 1
		}
	}
	return status
}

// kill signals a %job's process group or a single pid. A stopped job is
// continued so it can act on the signal.
func (s *Shell) kill(target string, sig unix.Signal) error {
	if strings.HasPrefix(target, "%") {
		j, err := s.Jobs.Lookup(target)
		if err != nil {
			return err
		}
		if j.Pgid == 0 {
			return jobs.ErrNoJobControl
		}
		if err := unix.Kill(-j.Pgid, sig); err != nil {
			return fmt.Errorf("%s: %w", target, err)
		}
		if j.State() == jobs.Stopped && sig != unix.SIGCONT {
			if err := unix.Kill(-j.Pgid, unix.SIGCONT); err != nil {
				return fmt.Errorf("%s: %w", target, err)
			}
		}
		return nil
	}
	pid, err := strconv.Atoi(target)
	if err != nil {
		return fmt.Errorf("%s: arguments must be process or job IDs", target)
	}
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	return nil
}

// parseSignal accepts a number, a name or a name without its SIG prefix.
// It returns 0 for anything else.
func parseSignal(spec string) unix.Signal {
	if n, err := strconv.Atoi(spec); err == nil {
		return unix.Signal(n)
	}
	name := strings.ToUpper(spec)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	return unix.SignalNum(name)
}

// historyResetter is implemented by line sources with their own history.
type historyResetter interface {
	ResetHistory()
}

func History(s *Shell, args []string) int {
	// parse -c to clear

	opts := getopt.New()
	clearAll := opts.Bool('c', "clear the history by deleting all entries")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := s.Err
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "Display or manipulate the history list")
		fmt.Fprintln(w, "Display the history list with line numbers.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		if err != nil {
			return StatusUsage
		}
		return 0
	}

	if *clearAll {
		if r, ok := s.source.(historyResetter); ok {
			r.ResetHistory()
		}
		s.history = nil
		return 0
	}

	for i, line := range s.history {
		fmt.Fprintf(s.Out, "% 5d  %s\n", i+1, line)
	}
	return 0
}

func Help(s *Shell, args []string) int {
	if len(args) > 1 {
		status := 0
		for _, name := range args[1:] {
			b, ok := s.Builtins[name]
			if !ok {
				fmt.Fprintf(s.Err, "%s: no help topics match `%s'\n", args[0], name)
				status = 1
				continue
			}
			b.Main(s, []string{name, "--help"})
		}
		return status
	}

	w := s.Out
	fmt.Fprintln(w, "rush, a job control shell")
	fmt.Fprintln(w, "These shell commands are defined internally.  Type `help' to see this list.")
	fmt.Fprintln(w, "Type `help name' to find out more about the function `name'.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Builtins:")
	fmt.Fprintln(w)

	var builtins []string
	for k := range s.Builtins {
		builtins = append(builtins, k)
	}
	sort.Strings(builtins)

	fmt.Fprintln(w, strings.Join(builtins, "\n"))

	return 0
}

func constant(code int) ShellBuiltinFunc {
	return func(*Shell, []string) int {
		return code
	}
}

func init() {
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["pwd"] = ShellBuiltinFunc(Pwd)
	AllBuiltins["echo"] = ShellBuiltinFunc(Echo)
	AllBuiltins["type"] = ShellBuiltinFunc(Type)
	AllBuiltins["export"] = ShellBuiltinFunc(Export)
	AllBuiltins["unset"] = ShellBuiltinFunc(Unset)
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
	AllBuiltins["jobs"] = ShellBuiltinFunc(Jobs)
	AllBuiltins["fg"] = ShellBuiltinFunc(Fg)
	AllBuiltins["bg"] = ShellBuiltinFunc(Bg)
	AllBuiltins["kill"] = ShellBuiltinFunc(Kill)
	AllBuiltins["history"] = ShellBuiltinFunc(History)
	AllBuiltins["help"] = ShellBuiltinFunc(Help)
	AllBuiltins["true"] = constant(0)
	AllBuiltins[":"] = constant(0)
	AllBuiltins["false"] = constant(1)
}
