// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package connstring parses MongoDB connection string URIs into a
// ClusterConfig, as described at
// https://docs.mongodb.com/manual/reference/connection-string/.
package connstring

import (
	"strconv"
	"strings"

	"github.com/mongokit/driver/address"
	"github.com/mongokit/driver/mongoerr"
	"github.com/mongokit/driver/readpref"
)

// URIScheme is the required prefix of every connection string this
// package accepts.
const URIScheme = "mongodb://"

// WriteConcern mirrors the subset of write-concern options the wire
// protocol accepts on a connection string: the "w" value (either a
// number or a mode string such as "majority"), an optional timeout, and
// the journal flag.
type WriteConcern struct {
	W        string
	WTimeout int
	HasW     bool
	HasJ     bool
	Journal  bool
}

// ClusterConfig is the parsed form of a mongodb:// connection string.
type ClusterConfig struct {
	Hosts      []address.Host
	User       string
	Password   string
	HasAuth    bool
	Database   string
	Collection string
	ReplicaSet string

	ReadPreference     readpref.Mode
	HasReadPreference  bool
	ReadPreferenceTags []readpref.TagSet

	WriteConcern WriteConcern

	// Options holds every recognized key=value pair except
	// readPreferenceTags, keyed by lowercased option name, including
	// those also broken out into a dedicated field above.
	Options map[string]string

	Raw string
}

// recognizedOptions enumerates every connection-string option this
// driver understands; any other key causes Parse to fail, matching the
// strict-URI behavior of the original driver.
var recognizedOptions = map[string]bool{
	"replicaset":         true,
	"w":                  true,
	"wtimeoutms":         true,
	"journal":            true,
	"readpreference":     true,
	"readpreferencetags": true,
}

// Parse parses a mongodb:// connection string URI into a ClusterConfig.
func Parse(uri string) (*ClusterConfig, error) {
	if !strings.HasPrefix(uri, URIScheme) {
		return nil, mongoerr.NewArgumentError("connection string must start with %q", URIScheme)
	}
	rest := uri[len(URIScheme):]

	hostPart, pathPart := splitHostAndPath(rest)

	if pathPart == "" && strings.Contains(hostPart, "?") {
		return nil, mongoerr.NewArgumentError("a '/' is required between the host list and any options")
	}

	cfg := &ClusterConfig{
		Database: "test",
		Raw:      uri,
		Options:  map[string]string{},
	}

	if at := strings.LastIndex(hostPart, "@"); at >= 0 {
		userInfo, hostString := hostPart[:at], hostPart[at+1:]
		user, password, err := parseUserInfo(userInfo)
		if err != nil {
			return nil, err
		}
		cfg.User, cfg.Password, cfg.HasAuth = user, password, true
		hostPart = hostString
	}

	hosts, err := splitHosts(hostPart)
	if err != nil {
		return nil, err
	}
	cfg.Hosts = hosts

	var optionString string
	if pathPart != "" {
		if strings.HasPrefix(pathPart, "?") {
			optionString = pathPart[1:]
		} else {
			dbAndOpts, opts := partition(pathPart, "?")
			dbase, coll := partition(dbAndOpts, ".")
			cfg.Database = dbase
			cfg.Collection = coll
			optionString = opts
		}
	}

	if optionString != "" {
		if err := applyOptions(cfg, optionString); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func splitHostAndPath(rest string) (host, path string) {
	if strings.Contains(rest, ".sock") {
		idx := strings.LastIndex(rest, ".sock")
		end := idx + len(".sock")
		hostPart, pathPart := rest[:end], rest[end:]
		pathPart = strings.TrimPrefix(pathPart, "/")
		return hostPart, pathPart
	}
	return partition(rest, "/")
}

func parseUserInfo(userInfo string) (user, password string, err error) {
	idx := strings.LastIndex(userInfo, ":")
	var u, p string
	if idx < 0 {
		u, p = userInfo, ""
	} else {
		u, p = userInfo[:idx], userInfo[idx+1:]
	}
	if strings.Contains(u, ":") {
		return "", "", mongoerr.NewArgumentError("':' or '@' characters in a username or password must be escaped")
	}
	if u == "" {
		return "", "", mongoerr.NewArgumentError("the empty string is not a valid username")
	}
	return u, p, nil
}

func splitHosts(hostStr string) ([]address.Host, error) {
	var hosts []address.Host
	for _, entity := range strings.Split(hostStr, ",") {
		if entity == "" {
			return nil, mongoerr.NewArgumentError("empty host, or extra comma in host list")
		}
		h, err := parseHostEntity(entity)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

func parseHostEntity(entity string) (address.Host, error) {
	switch {
	case strings.HasPrefix(entity, "["):
		return parseIPv6Literal(entity)
	case strings.Contains(entity, ":"):
		host, portStr := partition(entity, ":")
		if strings.Contains(portStr, ":") {
			return address.Host{}, mongoerr.NewArgumentError("reserved ':' must be escaped; IPv6 literals must be enclosed in '[' and ']'")
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return address.Host{}, mongoerr.NewArgumentError("port must be an unsigned integer")
		}
		return address.NewWithPort(host, port), nil
	case strings.Contains(entity, ".sock"):
		return address.New(entity), nil
	default:
		return address.New(entity), nil
	}
}

func parseIPv6Literal(entity string) (address.Host, error) {
	closeIdx := strings.Index(entity, "]")
	if closeIdx < 0 {
		return address.Host{}, mongoerr.NewArgumentError("an IPv6 address must be enclosed in '[' and ']'")
	}
	if closeIdx+1 < len(entity) && entity[closeIdx+1] == ':' {
		portStr := entity[closeIdx+2:]
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return address.Host{}, mongoerr.NewArgumentError("port must be an integer")
		}
		return address.NewWithPort(entity[1:closeIdx], port), nil
	}
	return address.NewWithPort(entity[1:closeIdx], address.DefaultPort), nil
}

func applyOptions(cfg *ClusterConfig, opts string) error {
	andIdx := strings.Contains(opts, "&")
	semiIdx := strings.Contains(opts, ";")
	switch {
	case andIdx && semiIdx:
		return mongoerr.NewArgumentError("cannot mix '&' and ';' for option separators")
	case !andIdx && !semiIdx && !strings.Contains(opts, "="):
		return mongoerr.NewArgumentError("MongoDB URI options are key=value pairs")
	}

	delim := "&"
	if semiIdx {
		delim = ";"
	}
	var pairs []string
	if andIdx || semiIdx {
		pairs = strings.Split(opts, delim)
	} else {
		pairs = []string{opts}
	}

	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key, val := partition(pair, "=")
		lower := strings.ToLower(key)

		if lower == "readpreferencetags" {
			ts, err := readpref.ParseTagSetString(val)
			if err != nil {
				return err
			}
			cfg.ReadPreferenceTags = append(cfg.ReadPreferenceTags, ts)
			continue
		}

		if !recognizedOptions[lower] {
			return mongoerr.NewArgumentError("unrecognized connection string option %q", key)
		}

		switch lower {
		case "replicaset":
			cfg.ReplicaSet = val
		case "w":
			cfg.WriteConcern.W = val
			cfg.WriteConcern.HasW = true
		case "wtimeoutms":
			ms, err := strconv.Atoi(val)
			if err != nil {
				return mongoerr.NewArgumentError("wtimeoutMS must be an integer")
			}
			cfg.WriteConcern.WTimeout = ms
		case "journal":
			cfg.WriteConcern.Journal = strings.EqualFold(val, "true")
			cfg.WriteConcern.HasJ = true
		case "readpreference":
			mode, err := readpref.ParseMode(val)
			if err != nil {
				return err
			}
			cfg.ReadPreference = mode
			cfg.HasReadPreference = true
		}
		cfg.Options[lower] = val
	}
	return nil
}

// partition splits s around the left-most occurrence of sep, returning
// (s, "") semantics matching Rust's str::partition used by the original
// parser: if sep is absent the whole string is the first half.
func partition(s, sep string) (before, after string) {
	idx := strings.Index(s, sep)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+len(sep):]
}
