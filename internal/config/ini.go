package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// iniDoc is a parsed INI file: section name ("" for the preamble) to
// ordered key/value pairs. No library in the reference corpus offers INI
// parsing (checked every go.mod in the pack); this is the one intentionally
// stdlib-only component, documented in DESIGN.md.
type iniDoc map[string]map[string]string

func parseINI(path string) (iniDoc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc := iniDoc{}
	section := ""
	doc[section] = map[string]string{}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("%s:%d: malformed section header", path, lineNo)
			}
			section = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := doc[section]; !ok {
				doc[section] = map[string]string{}
			}
			continue
		}

		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%s:%d: expected key=value", path, lineNo)
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		doc[section][key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return doc, nil
}

func apply(cfg *Config, doc iniDoc) error {
	if g, ok := doc["general"]; ok {
		if err := applyGeneral(cfg, g); err != nil {
			return err
		}
	}
	if l, ok := doc["livecast"]; ok {
		if err := applyLiveCast(&cfg.LiveCast, l); err != nil {
			return err
		}
	}
	if lg, ok := doc["log"]; ok {
		applyLog(cfg, lg)
	}
	return nil
}

func applyGeneral(cfg *Config, section map[string]string) error {
	if v, ok := section["basedir"]; ok {
		cfg.BaseDir = v
	}
	if v, ok := section["mtu"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("general.mtu: %w", err)
		}
		cfg.MTU = n
	}
	if v, ok := section["sr_interval"]; ok {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("general.sr_interval: %w", err)
		}
		cfg.SRInterval = d
	}
	if v, ok := section["poll_interval"]; ok {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("general.poll_interval: %w", err)
		}
		cfg.PollInterval = d
	}
	if v, ok := section["read_timeout"]; ok {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("general.read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if v, ok := section["write_timeout"]; ok {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("general.write_timeout: %w", err)
		}
		cfg.WriteTimeout = d
	}
	if v, ok := section["write_buffer_size"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("general.write_buffer_size: %w", err)
		}
		cfg.WriteBufferSize = n
	}
	if v, ok := section["aggregate_control"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("general.aggregate_control: %w", err)
		}
		cfg.AggregateControl = b
	}
	if v, ok := section["share_descriptors"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("general.share_descriptors: %w", err)
		}
		cfg.ShareDescriptors = b
	}
	return nil
}

func applyLiveCast(lc *LiveCast, section map[string]string) error {
	if v, ok := section["bitrate"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("livecast.bitrate: %w", err)
		}
		lc.BitRate = n
	}
	if v, ok := section["gop_size"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("livecast.gop_size: %w", err)
		}
		lc.GOPSize = n
	}
	if v, ok := section["max_bframes"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("livecast.max_bframes: %w", err)
		}
		lc.MaxBFrames = n
	}
	return nil
}

func applyLog(cfg *Config, section map[string]string) {
	if v, ok := section["level"]; ok {
		cfg.LogLevel = v
	}
	if v, ok := section["format"]; ok {
		cfg.LogFormat = v
	}
}

func parseSeconds(v string) (time.Duration, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}
