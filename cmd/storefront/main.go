package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-cart/internal/cart"
	"github.com/angelmondragon/storefront-cart/internal/storefront"
	"github.com/angelmondragon/storefront-cart/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

const closeTimeout = 10 * time.Second

const usage = `commands:
  login <token>          sign in and reconcile with the remote cart
  logout                 sign out, keeping the cart locally
  add <productId> [qty]  add a catalog product
  qty <productId> <qty>  set a line quantity (0 removes)
  remove <productId>     remove a line
  discount <code>        apply a discount code
  undiscount             remove the discount
  clear                  empty the cart
  show                   print the cart
  checkout               start a payment session
  quit`

func main() {
	_ = godotenv.Load()

	token := flag.String("token", "", "access token to sign in with at startup")
	flag.Parse()

	cfg, err := config.LoadStorefront()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Output:      os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := storefront.NewSession(ctx, *cfg, logg, nil)
	if err != nil {
		logg.Error(ctx, "failed to start storefront session", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			logg.Error(closeCtx, "error closing session", err)
		}
	}()

	go printEvents(os.Stderr, session.Events())

	if *token != "" {
		if err := session.Login(ctx, *token); err != nil {
			fmt.Fprintf(os.Stderr, "login: %v\n", err)
		}
	}

	fmt.Println(usage)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() || ctx.Err() != nil {
			return
		}
		quit, err := run(ctx, session, os.Stdout, strings.Fields(scanner.Text()))
		if err != nil {
			hint := ""
			if pkgerrors.IsRetryable(err) {
				hint = " (temporary, try again)"
			}
			fmt.Fprintf(os.Stderr, "error: %v%s\n", err, hint)
		}
		if quit {
			return
		}
	}
}

func run(ctx context.Context, session *storefront.Session, out io.Writer, args []string) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	store := session.Cart()

	switch args[0] {
	case "quit", "exit":
		return true, nil
	case "login":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: login <token>")
		}
		return false, session.Login(ctx, args[1])
	case "logout":
		return false, session.Logout(ctx)
	case "add":
		id, qty, err := productAndQty(args, 1)
		if err != nil {
			return false, err
		}
		return false, session.AddProduct(ctx, id, qty)
	case "qty":
		if len(args) != 3 {
			return false, fmt.Errorf("usage: qty <productId> <qty>")
		}
		id, qty, err := productAndQty(args, 0)
		if err != nil {
			return false, err
		}
		return false, store.UpdateQuantity(id, qty)
	case "remove":
		id, _, err := productAndQty(args, 0)
		if err != nil {
			return false, err
		}
		return false, store.RemoveItem(id)
	case "discount":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: discount <code>")
		}
		return false, store.ApplyDiscount(ctx, args[1])
	case "undiscount":
		return false, store.RemoveDiscount()
	case "clear":
		return false, store.Clear()
	case "show":
		printCart(out, session.Authority(), store.Snapshot())
		return false, nil
	case "checkout":
		url, err := session.Checkout(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "pay at: %s\n", url)
		return false, nil
	}
	return false, fmt.Errorf("unknown command %q", args[0])
}

func productAndQty(args []string, defaultQty int) (uuid.UUID, int, error) {
	if len(args) < 2 {
		return uuid.Nil, 0, fmt.Errorf("product id required")
	}
	id, err := uuid.Parse(args[1])
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("invalid product id: %w", err)
	}
	qty := defaultQty
	if len(args) > 2 {
		qty, err = strconv.Atoi(args[2])
		if err != nil {
			return uuid.Nil, 0, fmt.Errorf("invalid quantity: %w", err)
		}
	}
	return id, qty, nil
}

func printCart(out io.Writer, authority string, state cart.State) {
	fmt.Fprintf(out, "cart (%s), %d items\n", authority, state.ItemCount())
	for _, item := range state.Items {
		fmt.Fprintf(out, "  %s  %-24s x%-3d %s\n", item.ProductID, item.Product.Name, item.Quantity, item.LineTotal().StringFixed(2))
	}
	fmt.Fprintf(out, "subtotal %s\n", state.Subtotal().StringFixed(2))
	if state.Discount != nil {
		fmt.Fprintf(out, "discount %s -%s\n", state.Discount.Code, state.Discount.Amount.StringFixed(2))
	}
	fmt.Fprintf(out, "total    %s\n", state.Total().StringFixed(2))
}

func printEvents(out io.Writer, events <-chan cart.Event) {
	for event := range events {
		fmt.Fprintf(out, "[sync] %s\n", describeEvent(event))
	}
}

func describeEvent(event cart.Event) string {
	if event.Err != nil {
		return fmt.Sprintf("%s: %v", event.Kind, event.Err)
	}
	return string(event.Kind)
}
