// Package process supervises a long-running child process.
//
// Neurite uses it to own wpa_supplicant when wifi.supplicant.managed is set:
// the daemon is started in its own process group, its output is logged at
// debug level, it is restarted after RestartDelay when it exits unexpectedly,
// and the supervisor gives up after MaxRestartAttempts.
//
//	sup := process.NewSupervisor(process.SupplicantConfig(cfg.WiFi.Supplicant, "wlan0"))
//	sup.OnStateChange(func(s process.State) { ... })
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
