package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"pcap-dns-rewriter/capture"
	"pcap-dns-rewriter/config"
	"pcap-dns-rewriter/rewriter"
)

func ReadConfig(file *string) (*config.RewriterConfig, error) {
	if *file == "" {
		return &config.RewriterConfig{}, nil
	}
	log.Printf("Config: %s", *file)
	open, err := os.Open(*file)
	if err != nil {
		return nil, err
	}
	defer open.Close()
	config.BasePath = filepath.Dir(open.Name())
	return config.ParseConfig(open)
}

type Runner struct {
	config   *config.RewriterConfig
	rewriter *rewriter.Rewriter
}

func Create(conf *config.RewriterConfig) (*Runner, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	r, err := rewriter.New(conf)
	if err != nil {
		return nil, err
	}
	return &Runner{config: conf, rewriter: r}, nil
}

// Run loads the input capture, rewrites it and saves the output. Nothing is
// written unless every packet was processed.
func (r *Runner) Run() error {
	wd, e := os.Getwd()
	if e == nil {
		log.Printf("Working Path: %s", wd)
	}
	log.Printf("Rewrite %s -> %s with %s", r.config.Input, r.config.Output, r.rewriter)
	in, err := capture.Load(r.config.Input)
	if err != nil {
		return fmt.Errorf("load %s: %w", r.config.Input, err)
	}
	log.Printf("Loaded %s", in)
	out, report, err := r.rewriter.Rewrite(in)
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", r.config.Input, err)
	}
	for _, change := range report.Changes {
		structureLog := StructureLog{
			Packet:  change.Packet,
			Section: change.Section,
			Name:    change.Name,
			From:    change.From,
			To:      change.To,
			Record:  change.Record,
		}
		_ = json.NewEncoder(log.Writer()).Encode(structureLog)
	}
	if err := capture.Save(r.config.Output, out); err != nil {
		return fmt.Errorf("save %s: %w", r.config.Output, err)
	}
	log.Printf("Done, %s", report)
	return nil
}

type StructureLog struct {
	Packet  int    `json:"packet"`
	Section string `json:"section,omitempty"`
	Name    string `json:"name,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Record  string `json:"record,omitempty"`
}
