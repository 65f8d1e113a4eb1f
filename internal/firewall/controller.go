// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"grimm.is/dumpster/internal/errors"
	"grimm.is/dumpster/internal/logging"
)

const (
	// TableName is the nftables table this controller owns, family inet.
	TableName = "dumpster"
	// ChainName hooks the input path.
	ChainName = "input"
	// ChainPriority is fixed by operator-observable contract, not the
	// conventional filter priority.
	ChainPriority = 10

	// PrimarySetName holds per-element timed blocks.
	PrimarySetName = "dumpster_blackhole"
	// AltSetName is the untimed rotation buffer used while a primary
	// element's timeout is refreshed.
	AltSetName = "dumpster_blackhole_alt"

	// LogPrefix is observable to operators via the kernel log and must be
	// preserved verbatim.
	LogPrefix = "Dumpster Blackhole: "

	// DefaultTimeout is the conventional timed-block length. It is not set
	// on the primary set itself, which has no default element timeout, so
	// an element added without a timeout does not expire.
	DefaultTimeout = 15 * time.Minute
)

// Controller is the FirewallController. It owns all kernel-side mutation of
// the dumpster table; PolicyEngine is the only caller permitted to invoke it.
type Controller struct {
	conn   NFTablesConn
	logger *logging.Logger

	mu      sync.Mutex
	table   *nftables.Table
	chain   *nftables.Chain
	primary *nftables.Set
	alt     *nftables.Set
}

// NewControllerWithConn builds a Controller over an injected connection,
// the dependency-injection shape used throughout this repository's
// kernel-facing managers.
func NewControllerWithConn(conn NFTablesConn, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Controller{conn: conn, logger: logger}
}

// EnsureInitialized creates the table, chain, both sets, and both drop
// rules if they do not already exist. Every step is a no-op when the
// object is already present; existing objects' parameters are not
// re-verified beyond presence.
func (c *Controller) EnsureInitialized() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.table = c.conn.AddTable(&nftables.Table{
		Name:   TableName,
		Family: nftables.TableFamilyINet,
	})

	policy := nftables.ChainPolicyAccept
	c.chain = c.conn.AddChain(&nftables.Chain{
		Name:     ChainName,
		Table:    c.table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityRef(ChainPriority),
		Policy:   &policy,
	})

	c.primary = &nftables.Set{
		Table:      c.table,
		Name:       PrimarySetName,
		KeyType:    nftables.TypeIPAddr,
		HasTimeout: true,
	}
	if err := c.conn.AddSet(c.primary, nil); err != nil {
		return errors.Wrap(err, errors.KindTransport, "add primary blackhole set")
	}

	c.alt = &nftables.Set{
		Table:   c.table,
		Name:    AltSetName,
		KeyType: nftables.TypeIPAddr,
	}
	if err := c.conn.AddSet(c.alt, nil); err != nil {
		return errors.Wrap(err, errors.KindTransport, "add alt blackhole set")
	}

	// The table and chain must exist in the kernel before their rules can
	// be listed, so the object batch is flushed ahead of the rule checks.
	if err := c.conn.Flush(); err != nil {
		return errors.Wrap(err, errors.KindTransport, "flush nftables object batch")
	}

	if err := c.ensureDropRule(c.primary); err != nil {
		return err
	}
	if err := c.ensureDropRule(c.alt); err != nil {
		return err
	}

	if err := c.conn.Flush(); err != nil {
		return errors.Wrap(err, errors.KindTransport, "flush nftables init batch")
	}
	return nil
}

// ensureDropRule adds "if saddr in set then counter; log; drop" for set,
// skipping the add if a rule in the chain already carries this set's
// marker in its UserData — rule installation is idempotent by that marker,
// not just by object presence.
func (c *Controller) ensureDropRule(set *nftables.Set) error {
	existing, err := c.conn.GetRules(c.table, c.chain)
	if err != nil {
		return errors.Wrap(err, errors.KindTransport, "list existing rules")
	}
	marker := []byte(ruleMarker(set.Name))
	for _, r := range existing {
		if string(r.UserData) == string(marker) {
			return nil
		}
	}

	c.conn.AddRule(&nftables.Rule{
		Table: c.table,
		Chain: c.chain,
		Exprs: []expr.Any{
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseNetworkHeader,
				Offset:       12,
				Len:          4,
			},
			&expr.Lookup{
				SourceRegister: 1,
				SetName:        set.Name,
			},
			&expr.Counter{},
			&expr.Log{
				Prefix: []byte(LogPrefix),
			},
			&expr.Verdict{Kind: expr.VerdictDrop},
		},
		UserData: marker,
	})
	return nil
}

func ruleMarker(setName string) string {
	return "dumpster-rule:" + setName
}

// AddToSet stages ip into set with the given timeout (zero means no
// per-element timeout) and flushes immediately. If the element is already
// present it returns an error classified KindConflict; existOK swallows
// that conflict and reports success instead, matching the rotation
// protocol's "exist_ok=true" add-to-alt step.
func (c *Controller) AddToSet(set *nftables.Set, ip string, timeout time.Duration, existOK bool) error {
	addr, err := ipv4Bytes(ip)
	if err != nil {
		return errors.Wrap(err, errors.KindParse, "invalid IPv4 address")
	}

	elem := nftables.SetElement{Key: addr}
	if set.HasTimeout && timeout > 0 {
		elem.Timeout = timeout
	}

	if err := c.conn.SetAddElements(set, []nftables.SetElement{elem}); err != nil {
		return errors.Wrap(err, errors.KindTransport, "stage set element")
	}
	if err := c.conn.Flush(); err != nil {
		if isExistsErr(err) {
			if existOK {
				return nil
			}
			return errors.Attr(errors.New(errors.KindConflict, "set item already exists"), "set", set.Name)
		}
		return errors.Wrapf(err, errors.KindTransport, "add %s to set %s", ip, set.Name)
	}
	return nil
}

// RemoveFromSet removes ip from set. Missing elements (and a missing set
// entirely) are tolerated: removal of something already gone is a no-op,
// logged at warning.
func (c *Controller) RemoveFromSet(set *nftables.Set, ip string) error {
	addr, err := ipv4Bytes(ip)
	if err != nil {
		return errors.Wrap(err, errors.KindParse, "invalid IPv4 address")
	}

	if err := c.conn.SetDeleteElements(set, []nftables.SetElement{{Key: addr}}); err != nil {
		c.logger.Warn("remove from set failed, treating as already absent", "set", set.Name, "ip", ip, "error", err)
		return nil
	}
	if err := c.conn.Flush(); err != nil {
		c.logger.Warn("flush after remove failed, treating as already absent", "set", set.Name, "ip", ip, "error", err)
	}
	return nil
}

// GetSetElements returns every element currently in set. Per-element
// remaining timeout is not reliably surfaced by the netlink transport (see
// TimeOut's rotation protocol note); callers needing presence only should
// prefer this over the timeout value.
func (c *Controller) GetSetElements(set *nftables.Set) ([]string, error) {
	elems, err := c.conn.GetSetElements(set)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindTransport, "get elements of set %s", set.Name)
	}
	ips := make([]string, 0, len(elems))
	for _, e := range elems {
		ips = append(ips, net.IP(e.Key).String())
	}
	return ips, nil
}

// TimeOut installs or refreshes a timed block on ip for the given duration.
// On a conflict (ip already in the primary set) it runs the rotation
// protocol: the element is held in the alt set while the primary entry is
// removed and re-added with a fresh timeout, so the drop rule never stops
// matching ip at any observable instant.
//
// The rotation protocol's new timeout is the caller's seconds argument
// directly, not remaining-plus-seconds: google/nftables's GetSetElements
// does not reliably expose a live element's remaining timeout over
// netlink, so there is nothing trustworthy to add to. This always extends
// enforcement by at least the full configured window.
func (c *Controller) TimeOut(ip string, seconds time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.AddToSet(c.primary, ip, seconds, false)
	if err == nil {
		return nil
	}
	if !errors.IsConflict(err) {
		return err
	}

	c.logger.Debug("refreshing timeout via rotation protocol", "ip", ip)

	if err := c.AddToSet(c.alt, ip, 0, true); err != nil {
		return errors.Wrapf(err, errors.KindTransport, "rotation step 1 (add %s to alt)", ip)
	}
	if err := c.RemoveFromSet(c.primary, ip); err != nil {
		return errors.Wrapf(err, errors.KindTransport, "rotation step 2 (remove %s from primary)", ip)
	}
	if err := c.AddToSet(c.primary, ip, seconds, true); err != nil {
		return errors.Wrapf(err, errors.KindTransport, "rotation step 3 (re-add %s to primary)", ip)
	}
	if err := c.RemoveFromSet(c.alt, ip); err != nil {
		return errors.Wrapf(err, errors.KindTransport, "rotation step 4 (remove %s from alt)", ip)
	}
	return nil
}

// BlockPermanent adds one or more IPs to the primary set with no timeout,
// tolerating elements that are already present.
func (c *Controller) BlockPermanent(ips ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ip := range ips {
		if err := c.AddToSet(c.primary, ip, 0, true); err != nil {
			return errors.Wrapf(err, errors.KindTransport, "permanently block %s", ip)
		}
	}
	return nil
}

func ipv4Bytes(ip string) ([]byte, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return nil, fmt.Errorf("not a valid IP address: %s", ip)
	}
	v4 := addr.To4()
	if v4 == nil {
		return nil, fmt.Errorf("not a valid IPv4 address: %s", ip)
	}
	return v4, nil
}

func isExistsErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, unix.EEXIST) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "exist")
}
