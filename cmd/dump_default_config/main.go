package main

import (
	"flag"
	"os"

	"github.com/thagki9/fundkrawler"
)

func main() {
	output := flag.String("o", "fundkrawler.default.yaml", "file the default config is written to")
	flag.Parse()

	f, err := os.OpenFile(*output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	err = fundkrawler.DefaultRawConfig.DumpYAML(f)
	if err != nil {
		panic(err)
	}
}
