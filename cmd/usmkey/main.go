package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/tennashi/usm"
)

var Version string

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	flagset := flag.NewFlagSet("usmkey", flag.ExitOnError)
	flagset.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", args[0])
		fmt.Fprintln(os.Stderr, "Derives USM keys, or checks a configuration file with -config.")
		flagset.PrintDefaults()
	}

	var (
		printVersion bool
		configFile   string
		authProto    string
		privProto    string
		password     string
		engine       string
		logLevel     string
	)
	flagset.BoolVar(&printVersion, "version", false, "Print version and exit")
	flagset.StringVar(&configFile, "config", "", "Check the engine configuration in this TOML or YAML file")
	flagset.StringVar(&authProto, "auth", "sha1", "Authentication protocol")
	flagset.StringVar(&privProto, "priv", "", "Also derive the privacy key for this protocol")
	flagset.StringVar(&password, "password", "", "Password to derive keys from")
	flagset.StringVar(&engine, "engine", "", "Engine ID, hex or text:<enterprise>:<text>")
	flagset.StringVar(&logLevel, "log-level", "info", "Log level")
	flagset.Parse(args[1:])

	if printVersion {
		fmt.Fprintln(os.Stderr, "usmkey: SNMPv3 user-based security model tool")
		fmt.Fprintln(os.Stderr, "Version: ", Version)
		return 0
	}

	if configFile != "" {
		return checkConfig(configFile)
	}

	usm.ConfigureLogging(logLevel)
	if password == "" || engine == "" {
		flagset.Usage()
		return 3
	}
	if err := printKeys(authProto, privProto, password, engine); err != nil {
		log.WithError(err).Error("unable to derive keys")
		return 1
	}
	return 0
}

func checkConfig(path string) int {
	cfg, err := usm.LoadConfig(path)
	if err != nil {
		usm.ConfigureLogging("info")
		log.WithError(err).Error("invalid configuration")
		return 3
	}
	usm.ConfigureLogging(cfg.Log.Level)

	// A boots file would be advanced by opening the engine.
	cfg.Engine.BootsFile = ""
	e, err := usm.NewEngine(cfg)
	if err != nil {
		log.WithError(err).Error("unable to start engine")
		return 1
	}
	defer e.Close()

	boots, engineTime := e.LocalEngine().BootsTime()
	fmt.Printf("engine %s boots %d time %d\n", e.LocalEngine().ID(), boots, engineTime)
	users, _ := cfg.UserEntries()
	for _, u := range users {
		engineID := "*"
		if len(u.EngineID) > 0 {
			engineID = u.EngineID.String()
		}
		fmt.Printf("user %s engine %s auth %v priv %v level %v\n",
			u.Name, engineID, u.AuthProtocol, u.PrivProtocol, u.SecurityLevel())
	}
	return 0
}

func printKeys(authProto, privProto, password, engine string) error {
	engineID, err := usm.ParseEngineID(engine)
	if err != nil {
		return err
	}
	auth, err := usm.NewAuthenticationModule(authProto)
	if err != nil {
		return err
	}
	ku, err := usm.PasswordToKey(auth.Protocol(), password)
	if err != nil {
		return err
	}
	kul, err := auth.GenerateKey(password, engineID)
	if err != nil {
		return err
	}
	fmt.Printf("ku  %s\n", hex.EncodeToString(ku))
	fmt.Printf("kul %s\n", hex.EncodeToString(kul))

	if privProto == "" {
		return nil
	}
	priv, err := usm.NewPrivacyModule(privProto)
	if err != nil {
		return err
	}
	key, err := priv.Key(auth, password, engineID)
	if err != nil {
		return err
	}
	fmt.Printf("priv %s\n", hex.EncodeToString(key))
	return nil
}
