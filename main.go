package main

import (
	"flag"
	"log"
	"os"
)

func main() {
	file := flag.String("c", "", "config location")
	input := flag.String("i", "", "input pcap, overrides config")
	output := flag.String("o", "", "output pcap, overrides config")
	identifier := flag.String("id", "", "numeric identifier the target address is derived from, overrides config")
	flag.Parse()
	executable, e := os.Executable()
	if e == nil {
		log.Printf("Executable Path: %s", executable)
	}
	conf, err := ReadConfig(file)
	passOrFatal(err)
	if *input != "" {
		conf.Input = *input
	}
	if *output != "" {
		conf.Output = *output
	}
	if *identifier != "" {
		conf.Identifier = *identifier
	}
	runner, err := Create(conf)
	passOrFatal(err)
	passOrFatal(runner.Run())
}

func passOrFatal(e error) {
	if e != nil {
		log.Fatalln(e)
	}
}
