package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/icodeforyou/meterit-go/config"
	"github.com/icodeforyou/meterit-go/esios"
	"github.com/icodeforyou/meterit-go/period"
	"github.com/joho/godotenv"
)

// Prints the price curve ESIOS returns for a day without storing it.
func main() {
	configPath := flag.String("config", "", "path to config file")
	date := flag.String("date", time.Now().UTC().Format(time.DateOnly), "day to fetch, YYYY-MM-DD")
	flag.Parse()

	_ = godotenv.Load()

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := period.SetTimezone(cnfg.EnergyPrice.GetTimezone()); err != nil {
		panic(err)
	}

	day, err := time.Parse(time.DateOnly, *date)
	if err != nil {
		panic(fmt.Sprintf("invalid date %q: %v", *date, err))
	}

	prices, err := esios.New(cnfg.Esios).GetPrices(context.Background(), day)
	if err != nil {
		panic(err)
	}

	for _, p := range prices {
		fmt.Printf("Slot: %s (%s), Price: %s\n", p.Slot.String(), p.Slot.Key(), p.Price.String())
	}
	fmt.Printf("%d prices for geo %d\n", len(prices), cnfg.Esios.GetGeoID())
}
