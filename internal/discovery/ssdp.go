// Package discovery implements the one-shot broadcast scan for TVs on
// the local network. It is purely an address source: nothing here feeds
// session state.
package discovery

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tvlink-server/tvlink-server/internal/models"
)

// SSDP 协议常量
const (
	// DefaultMulticastAddr is the standard SSDP multicast endpoint.
	DefaultMulticastAddr = "239.255.255.250:1900"

	// DefaultSearchTarget identifies second-screen capable TVs.
	DefaultSearchTarget = "urn:lge-com:service:webos-second-screen:1"
)

// Scanner performs SSDP M-SEARCH probes.
type Scanner struct {
	multicastAddr string
	searchTarget  string
}

// NewScanner creates a scanner; empty arguments select the defaults.
func NewScanner(multicastAddr, searchTarget string) *Scanner {
	if multicastAddr == "" {
		multicastAddr = DefaultMulticastAddr
	}
	if searchTarget == "" {
		searchTarget = DefaultSearchTarget
	}
	return &Scanner{multicastAddr: multicastAddr, searchTarget: searchTarget}
}

// Scan 发送一次 M-SEARCH 探测并收集应答直到超时。
// 同一地址只保留第一条应答；不通过厂商识别检查的应答被丢弃。
func (s *Scanner) Scan(ctx context.Context, timeout time.Duration) ([]models.DiscoveredDevice, error) {
	raddr, err := net.ResolveUDPAddr("udp4", s.multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast addr: %w", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("open probe socket: %w", err)
	}
	defer conn.Close()

	request := strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + s.multicastAddr,
		"MAN: \"ssdp:discover\"",
		"MX: " + fmt.Sprint(int(timeout.Seconds())),
		"ST: " + s.searchTarget,
		"", "",
	}, "\r\n")

	if _, err := conn.WriteToUDP([]byte(request), raddr); err != nil {
		return nil, fmt.Errorf("send probe: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var devices []models.DiscoveredDevice
	buf := make([]byte, 4096)

	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return devices, fmt.Errorf("read probe responses: %w", err)
		}

		headers := parseResponse(buf[:n])
		if headers == nil {
			continue
		}
		address := from.IP.String()
		if seen[address] {
			continue
		}
		if !s.vendorMatch(headers) {
			log.Debug().Str("address", address).Msg("Responder failed vendor check")
			continue
		}
		seen[address] = true

		devices = append(devices, models.DiscoveredDevice{
			Address:   address,
			Name:      headers["DLNADEVICENAME.LGE.COM"],
			ModelName: headers["SERVER"],
			Location:  headers["LOCATION"],
			Headers:   headers,
		})
	}

	log.Info().
		Int("devices", len(devices)).
		Dur("timeout", timeout).
		Msg("Discovery scan finished")

	return devices, nil
}

// parseResponse extracts headers from one SSDP HTTP-over-UDP response.
// Returns nil unless the status line is a 200.
func parseResponse(data []byte) map[string]string {
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	if !scanner.Scan() {
		return nil
	}
	status := scanner.Text()
	if !strings.Contains(status, "200") || !strings.HasPrefix(strings.ToUpper(status), "HTTP/") {
		return nil
	}

	headers := make(map[string]string)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return headers
}

// vendorMatch 厂商识别检查：ST 或 USN 必须回显我们的搜索目标
func (s *Scanner) vendorMatch(headers map[string]string) bool {
	if strings.EqualFold(headers["ST"], s.searchTarget) {
		return true
	}
	return strings.Contains(strings.ToLower(headers["USN"]), strings.ToLower(s.searchTarget))
}
