package main

import (
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/thagki9/fundkrawler"
)

func main() {
	configPath := flag.String("config", "", "path of a YAML config file, defaults are used when empty")
	flag.Parse()

	config := fundkrawler.GetDefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			log.Fatalf("Fail to open config %s, reason: %v", *configPath, err)
		}
		config, err = fundkrawler.LoadConfig(f)
		f.Close()
		if err != nil {
			log.Fatalf("Fail to load config %s, reason: %v", *configPath, err)
		}
	}

	engine := fundkrawler.NewEngine()
	engine.Initialize(config)

	report, err := engine.Start()
	if err != nil {
		log.Fatalf("Crawl failed, reason: %v", err)
	}
	if len(report.Abandoned) > 0 {
		log.Warnf("%d of %d variants were abandoned", len(report.Abandoned),
			len(report.Done)+len(report.Abandoned)+len(report.Unfinished))
	}
}
