package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hermod-gw/hermod/pkg/client"
)

type command struct {
	api *APIFlags
}

// newClient builds an API client from the persistent flags, checking that
// the daemon is reachable first.
func (c command) newClient() (*client.Client, error) {
	cfg := client.DefaultConfig()
	if c.api.URL != "" {
		cfg.BaseURL = c.api.URL
	}
	cfg.APIKey = c.api.APIKey
	cfg.Timeout = c.api.Timeout
	cfg.Insecure = c.api.Insecure

	cl := client.New(cfg)
	if !cl.IsReachable(context.Background()) {
		return nil, fmt.Errorf("daemon not reachable at %s - start it first with 'hermod serve'", cfg.BaseURL)
	}
	return cl, nil
}

func (c command) Connect() error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	if err := cl.Connect(context.Background()); err != nil {
		return err
	}
	fmt.Println("connect requested")
	return nil
}

func (c command) Disconnect() error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	if err := cl.Disconnect(context.Background()); err != nil {
		return err
	}
	fmt.Println("disconnected")
	return nil
}

func (c command) Status() error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	snap, err := cl.Status(context.Background())
	if err != nil {
		return err
	}
	printJSON(snap)
	return nil
}

func (c command) Pairing() error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	art, err := cl.Pairing(context.Background())
	if err != nil {
		return err
	}
	printJSON(art)
	return nil
}

func (c command) Send(f SendFlags) error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	if !json.Valid([]byte(f.Payload)) {
		return fmt.Errorf("payload must be valid JSON")
	}
	req := client.SendRequest{Recipient: f.Recipient, Payload: json.RawMessage(f.Payload)}
	if err := cl.Send(context.Background(), req); err != nil {
		return err
	}
	fmt.Println("sent")
	return nil
}

func (c command) Broadcast(f BroadcastFlags) error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	if !json.Valid([]byte(f.Payload)) {
		return fmt.Errorf("payload must be valid JSON")
	}
	report, err := cl.Broadcast(context.Background(), client.BroadcastRequest{
		Recipients: f.Recipients,
		Payload:    json.RawMessage(f.Payload),
	})
	if err != nil {
		return err
	}
	printJSON(report)
	return nil
}

func (c command) SubscriberAdd(f SubscriberFlags) error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	sub, err := cl.RegisterSubscriber(context.Background(), client.SubscriberRequest{
		EndpointURL: f.URL,
		Events:      f.Events,
		Secret:      f.Secret,
	})
	if err != nil {
		return err
	}
	printJSON(sub)
	return nil
}

func (c command) SubscriberList() error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	subs, err := cl.ListSubscribers(context.Background())
	if err != nil {
		return err
	}
	printJSON(subs)
	return nil
}

func (c command) SubscriberRemove(id string) error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	if err := cl.RemoveSubscriber(context.Background(), id); err != nil {
		return err
	}
	fmt.Println("removed")
	return nil
}

func (c command) SubscriberTest(id string) error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	if err := cl.TestSubscriber(context.Background(), id); err != nil {
		return err
	}
	fmt.Println("test delivery succeeded")
	return nil
}

func (c command) Stats() error {
	cl, err := c.newClient()
	if err != nil {
		return err
	}
	stats, err := cl.Stats(context.Background())
	if err != nil {
		return err
	}
	printJSON(stats)
	return nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
