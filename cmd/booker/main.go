// Command booker is a terminal front end for booking hotel rooms. It holds
// the selected rooms for ten minutes while the guest fills in the details.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robertarktes/hotel-room-holds/internal/client"
	"github.com/robertarktes/hotel-room-holds/internal/config"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
	"github.com/robertarktes/hotel-room-holds/internal/reservation"
)

func main() {
	hotelID := flag.Int64("hotel", 0, "hotel id")
	checkIn := flag.String("in", time.Now().AddDate(0, 0, 1).Format(domain.DateLayout), "check-in date")
	checkOut := flag.String("out", time.Now().AddDate(0, 0, 2).Format(domain.DateLayout), "check-out date")
	flag.Parse()

	if *hotelID <= 0 {
		log.Fatal("-hotel is required")
	}
	in, err := domain.ParseDate(*checkIn)
	if err != nil {
		log.Fatal(err)
	}
	out, err := domain.ParseDate(*checkOut)
	if err != nil {
		log.Fatal(err)
	}
	if err := domain.ValidateStay(in, out); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "hotel-booker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logFile, err := os.OpenFile("booker.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()
	logger := observability.NewLoggerTo(logFile)

	api := client.New(cfg.APIBaseURL, cfg.APIToken)
	ctrl := reservation.NewController(api, *hotelID, in, out,
		reservation.WithLogger(logger),
		reservation.WithSubmitter(api),
		reservation.WithReleaseTimeout(cfg.ReleaseTimeout),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sh := &shell{ctrl: ctrl, vouchers: api, out: os.Stdout}

	events := make(chan reservation.HostEvent, 1)
	go ctrl.Watch(ctx, events)
	go ctrl.RunAvailabilityRefresh(ctx, cfg.AvailabilityRefreshInterval)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGTSTP)

	fmt.Printf("Booking hotel %d from %s to %s. Type help for commands.\n", *hotelID, in, out)
	if err := ctrl.RefreshAvailability(ctx); err == nil {
		sh.printRooms()
	}

loop:
	for {
		fmt.Print("> ")
		select {
		case n := <-ctrl.Notices():
			fmt.Println()
			sh.printNotice(n)
		case sig := <-sigs:
			fmt.Println()
			switch sig {
			case syscall.SIGINT:
				if sh.leave(reservation.EventUnloadRequested) {
					break loop
				}
			case syscall.SIGTERM:
				ctrl.OnAbandon(reservation.EventUnloadRequested)
				break loop
			default:
				select {
				case events <- reservation.EventHidden:
				default:
				}
			}
		case line, ok := <-lines:
			if !ok {
				ctrl.OnAbandon(reservation.EventUnloadRequested)
				break loop
			}
			if sh.exec(ctx, line) {
				break loop
			}
		}
	}

	cancel()
	ctrl.Close()
	for {
		select {
		case n := <-ctrl.Notices():
			sh.printNotice(n)
		default:
			return
		}
	}
}
