package blackboard

import "fmt"

// Client is a scoped view onto a Blackboard: a namespace allow-list plus
// optional per-key read/write allow-lists and an actor identity attached
// to every mutation it performs.
type Client struct {
	bb        *Blackboard
	actor     string
	allowedNS map[string]bool // nil => all namespaces allowed
	readKeys  map[string]bool // nil => all keys readable
	writeKeys map[string]bool // nil => all keys writable
}

// ClientOption configures a Client at construction.
type ClientOption func(*Client)

// WithAllowedNamespaces restricts the client to the given namespaces.
func WithAllowedNamespaces(namespaces ...string) ClientOption {
	return func(c *Client) {
		c.allowedNS = make(map[string]bool, len(namespaces))
		for _, ns := range namespaces {
			c.allowedNS[ns] = true
		}
	}
}

// WithReadKeys restricts the client to reading only the given keys.
func WithReadKeys(keys ...string) ClientOption {
	return func(c *Client) {
		c.readKeys = make(map[string]bool, len(keys))
		for _, k := range keys {
			c.readKeys[k] = true
		}
	}
}

// WithWriteKeys restricts the client to writing only the given keys.
func WithWriteKeys(keys ...string) ClientOption {
	return func(c *Client) {
		c.writeKeys = make(map[string]bool, len(keys))
		for _, k := range keys {
			c.writeKeys[k] = true
		}
	}
}

// NewClient creates a scoped view of bb acting as actor, unrestricted
// unless narrowed by options.
func NewClient(bb *Blackboard, actor string, opts ...ClientOption) *Client {
	c := &Client{bb: bb, actor: actor}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Actor returns the identity this client attributes writes to.
func (c *Client) Actor() string { return c.actor }

// Raw returns the underlying Blackboard, bypassing scoping. Intended for
// the tree manager's snapshot/restore machinery, not for leaf code.
func (c *Client) Raw() *Blackboard { return c.bb }

func (c *Client) checkNamespace(ns string) error {
	if ns == "" {
		ns = DefaultNamespace
	}
	if c.allowedNS != nil && !c.allowedNS[ns] {
		return fmt.Errorf("%w: namespace %q not allowed for actor %q", ErrAccessDenied, ns, c.actor)
	}
	return nil
}

func (c *Client) checkRead(key string) error {
	if c.readKeys != nil && !c.readKeys[key] {
		return fmt.Errorf("%w: read of key %q not allowed for actor %q", ErrAccessDenied, key, c.actor)
	}
	return nil
}

func (c *Client) checkWrite(key string) error {
	if c.writeKeys != nil && !c.writeKeys[key] {
		return fmt.Errorf("%w: write of key %q not allowed for actor %q", ErrAccessDenied, key, c.actor)
	}
	return nil
}

// Get reads a key, subject to namespace/read-key scoping.
func (c *Client) Get(namespace, key string) (any, error) {
	if err := c.checkNamespace(namespace); err != nil {
		return nil, err
	}
	if err := c.checkRead(key); err != nil {
		return nil, err
	}
	return c.bb.Get(namespace, key)
}

// GetOr reads a key, returning def on access denial, missing namespace,
// or missing key alike.
func (c *Client) GetOr(namespace, key string, def any) any {
	v, err := c.Get(namespace, key)
	if err != nil {
		return def
	}
	return v
}

// Set writes a key as this client's actor, subject to namespace/write-key
// scoping.
func (c *Client) Set(namespace, key string, value any) error {
	if err := c.checkNamespace(namespace); err != nil {
		return err
	}
	if err := c.checkWrite(key); err != nil {
		return err
	}
	return c.bb.Set(namespace, key, value, c.actor)
}

// Delete removes a key as this client's actor, subject to scoping.
func (c *Client) Delete(namespace, key string) (bool, error) {
	if err := c.checkNamespace(namespace); err != nil {
		return false, err
	}
	if err := c.checkWrite(key); err != nil {
		return false, err
	}
	return c.bb.Delete(namespace, key, c.actor)
}

// Subscribe registers an observer, subject to namespace scoping.
func (c *Client) Subscribe(namespace, key string, o Observer) (func(), error) {
	if err := c.checkNamespace(namespace); err != nil {
		return nil, err
	}
	return c.bb.Subscribe(namespace, key, o), nil
}
