package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-room-holds/internal/domain"
	"github.com/robertarktes/hotel-room-holds/internal/reservation"
)

const helpText = `commands:
  rooms                 refresh and list rooms
  select <id>...        add rooms to the selection
  unselect <id>...      remove rooms from the selection
  dates <in> <out>      change the stay (YYYY-MM-DD)
  hold                  hold the selection and continue to details
  back                  release the hold and go back to room selection
  vouchers              list the active vouchers
  voucher <code|none>   apply a voucher to the quote and booking
  quote                 show the price of the selection
  book <payment> [note] book the held rooms (CARD, WALLET, BANK_TRANSFER)
  reset                 start over with an empty selection
  status                show the booking state
  quit                  leave`

type voucherLister interface {
	ListVouchers(ctx context.Context) ([]domain.Voucher, error)
}

// shell turns typed commands into controller calls.
type shell struct {
	ctrl         *reservation.Controller
	vouchers     voucherLister
	out          io.Writer
	voucher      *domain.Voucher
	leavePending bool
}

func (s *shell) printf(format string, args ...interface{}) {
	fmt.Fprintf(s.out, format, args...)
}

// leave reports whether the host may exit now. While rooms are held the
// first request only asks for confirmation.
func (s *shell) leave(ev reservation.HostEvent) bool {
	if s.ctrl.NeedsLeaveConfirmation() && !s.leavePending {
		s.leavePending = true
		s.printf("Your rooms are on hold. Leaving releases them; repeat to confirm.\n")
		return false
	}
	s.ctrl.OnAbandon(ev)
	return true
}

func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, errors.New("expected at least one room id")
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, errors.Newf("invalid room id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// exec runs one command line and reports whether the shell should exit.
// Controller failures are already surfaced as notices, so only usage
// errors are printed here.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	if cmd != "quit" && cmd != "exit" {
		s.leavePending = false
	}

	switch cmd {
	case "help", "?":
		s.printf("%s\n", helpText)
	case "rooms":
		if err := s.ctrl.RefreshAvailability(ctx); err == nil {
			s.printRooms()
		}
	case "select", "unselect":
		ids, err := parseIDs(args)
		if err != nil {
			s.printf("%v\n", err)
			return false
		}
		for _, id := range ids {
			if err := s.ctrl.SelectRoom(id, cmd == "select"); err != nil {
				break
			}
		}
		s.printStatus()
	case "dates":
		if len(args) != 2 {
			s.printf("usage: dates <check-in> <check-out>\n")
			return false
		}
		in, err := domain.ParseDate(args[0])
		if err != nil {
			s.printf("%v\n", err)
			return false
		}
		out, err := domain.ParseDate(args[1])
		if err != nil {
			s.printf("%v\n", err)
			return false
		}
		if err := s.ctrl.SetStay(in, out); err != nil {
			s.printf("%v\n", err)
			return false
		}
		if err := s.ctrl.RefreshAvailability(ctx); err == nil {
			s.printRooms()
		}
	case "hold":
		if err := s.ctrl.ProceedToDetails(ctx); err == nil {
			s.printStatus()
		}
	case "back":
		if err := s.ctrl.ReturnToSelection(ctx); err != nil {
			s.printf("no rooms are on hold\n")
			return false
		}
		s.printStatus()
	case "vouchers":
		list, err := s.listVouchers(ctx)
		if err != nil {
			s.printf("%v\n", err)
			return false
		}
		if len(list) == 0 {
			s.printf("no active vouchers\n")
		}
		for _, v := range list {
			s.printf("%-12s %5.1f%%  from %8.2f  %s\n", v.Code, v.PercentDiscount, v.PriceCondition, v.Name)
		}
	case "voucher":
		if len(args) != 1 {
			s.printf("usage: voucher <code|none>\n")
			return false
		}
		if strings.EqualFold(args[0], "none") {
			s.voucher = nil
			s.printf("voucher cleared\n")
			return false
		}
		v, err := s.findVoucher(ctx, args[0])
		if err != nil {
			s.printf("%v\n", err)
			return false
		}
		s.voucher = v
		s.printf("voucher %s applied (%.1f%% from %.2f)\n", v.Code, v.PercentDiscount, v.PriceCondition)
	case "quote":
		subtotal, discount, total := s.ctrl.Quote(s.voucher)
		if s.voucher != nil {
			s.printf("subtotal %.2f, discount %.2f (%s), total %.2f\n", subtotal, discount, s.voucher.Code, total)
			return false
		}
		s.printf("subtotal %.2f, total %.2f\n", subtotal, total)
	case "book":
		if len(args) == 0 {
			s.printf("usage: book <CARD|WALLET|BANK_TRANSFER> [note]\n")
			return false
		}
		bookings, err := s.ctrl.Submit(ctx, reservation.Details{
			PaymentType: domain.PaymentType(strings.ToUpper(args[0])),
			Notes:       strings.Join(args[1:], " "),
			Voucher:     s.voucher,
		})
		if errors.Is(err, reservation.ErrNotHolding) {
			s.printf("hold rooms first\n")
			return false
		}
		if err != nil {
			return false
		}
		for _, b := range bookings {
			s.printf("booked room %d: %s %.2f (%s)\n", b.RoomID, b.ID, b.TotalPrice, b.Status)
		}
	case "reset":
		if err := s.ctrl.Reset(ctx); err != nil {
			s.printf("%v\n", err)
		}
	case "status":
		s.printStatus()
	case "quit", "exit":
		return s.leave(reservation.EventUnloadRequested)
	default:
		s.printf("unknown command %q, type help\n", cmd)
	}
	return false
}

func (s *shell) listVouchers(ctx context.Context) ([]domain.Voucher, error) {
	if s.vouchers == nil {
		return nil, errors.New("vouchers are not available")
	}
	list, err := s.vouchers.ListVouchers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list vouchers")
	}
	return list, nil
}

func (s *shell) findVoucher(ctx context.Context, code string) (*domain.Voucher, error) {
	list, err := s.listVouchers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if strings.EqualFold(list[i].Code, code) {
			return &list[i], nil
		}
	}
	return nil, errors.Newf("no active voucher %q", code)
}

func (s *shell) printStatus() {
	v := s.ctrl.Snapshot()
	s.printf("state %s, step %s", v.State, v.Step)
	if v.State == reservation.StateHolding {
		s.printf(", hold expires in %s", v.RemainingLabel)
	}
	s.printf(", selected %v, subtotal %.2f\n", v.Selection, v.Subtotal)
}

func (s *shell) printRooms() {
	v := s.ctrl.Snapshot()
	selected := make(map[int64]bool, len(v.Selection))
	for _, id := range v.Selection {
		selected[id] = true
	}
	for _, r := range v.Rooms {
		mark := " "
		if selected[r.ID] {
			mark = "x"
		}
		status := "available"
		if !r.Available {
			status = "booked"
		}
		s.printf("[%s] %-6d %-7s cap %d  %8.2f/night  %s\n", mark, r.ID, r.Type, r.Capacity, r.PricePerNight, status)
	}
}

func (s *shell) printNotice(n reservation.Notice) {
	s.printf("%s: %s\n", strings.ToUpper(n.Level.String()), n.Message)
}
