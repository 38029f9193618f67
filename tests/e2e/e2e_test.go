// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// e2e implements the e2e tests.
package e2e_test

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ginkgo "github.com/onsi/ginkgo/v2"
	"github.com/onsi/ginkgo/v2/formatter"
	"github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/omnichain-devtools/lzread/chain"
	"github.com/omnichain-devtools/lzread/chain/evm"
	"github.com/omnichain-devtools/lzread/chain/evm/evmtest"
	"github.com/omnichain-devtools/lzread/client"
	"github.com/omnichain-devtools/lzread/codec"
	"github.com/omnichain-devtools/lzread/resolver"
	"github.com/omnichain-devtools/lzread/service"
)

func TestE2e(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "lzread e2e test suites")
}

const (
	ethereumEID = 30101
	arbitrumEID = 30110
)

var (
	requestTimeout time.Duration

	echoAddress    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	revertAddress  = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	computeAddress = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func init() {
	flag.DurationVar(
		&requestTimeout,
		"request-timeout",
		30*time.Second,
		"timeout for a single resolution",
	)
}

type node struct {
	eid    uint32
	chain  *evmtest.Chain
	server *httptest.Server
}

var (
	nodes    []*node
	lzread   *httptest.Server
	cli      client.Client
	registry *prometheus.Registry
)

var _ = ginkgo.BeforeSuite(func() {
	urls := make(map[uint32]string)
	for _, n := range []*node{
		{eid: ethereumEID, chain: evmtest.NewChain(100, 112, 124, 136, 148, 160)},
		{eid: arbitrumEID, chain: evmtest.NewChain(100, 101, 101, 102, 104, 107, 111, 116)},
	} {
		n.chain.Deploy(echoAddress, echo)
		n.chain.Deploy(revertAddress, func([]byte, uint64) ([]byte, error) {
			return nil, evmtest.RevertReason("stale price")
		})
		n.chain.Deploy(computeAddress, compute)

		rpcServer, err := n.chain.Server()
		gomega.Expect(err).Should(gomega.BeNil())
		n.server = httptest.NewServer(rpcServer)
		urls[n.eid] = n.server.URL
		nodes = append(nodes, n)
		outf("{{green}}started chain %d at{{/}} %s\n", n.eid, n.server.URL)
	}

	registry = prometheus.NewRegistry()
	clients, err := chain.Memoize(evm.NewFactory(urls), chain.DefaultFactoryCacheSize, "lzread_chain_clients", registry)
	gomega.Expect(err).Should(gomega.BeNil())
	r, err := resolver.NewCommandResolver(
		chain.WithRetry(evm.ViewCallers(clients), chain.DefaultRetryConfig),
		chain.WithClockRetry(evm.BlockClocks(clients), chain.DefaultRetryConfig),
		registry,
	)
	gomega.Expect(err).Should(gomega.BeNil())
	handler, err := service.NewHandler(r, registry)
	gomega.Expect(err).Should(gomega.BeNil())

	lzread = httptest.NewServer(handler)
	cli = client.New(lzread.URL)
	outf("{{green}}lzread serving at{{/}} %s\n", lzread.URL)
})

var _ = ginkgo.AfterSuite(func() {
	if lzread != nil {
		lzread.Close()
	}
	for _, n := range nodes {
		n.server.Close()
	}
})

// echo answers with its calldata followed by the block number
func echo(calldata []byte, block uint64) ([]byte, error) {
	return append(append([]byte{}, calldata...), byte(block)), nil
}

// compute prefixes every response with 0xaa when mapping and concatenates
// them behind their count when reducing
func compute(calldata []byte, _ uint64) ([]byte, error) {
	method, err := resolver.ComputeABI.MethodById(calldata[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, err
	}
	if method.Name == "lzMap" {
		return method.Outputs.Pack(append([]byte{0xaa}, args[1].([]byte)...))
	}
	responses := args[1].([][]byte)
	return method.Outputs.Pack(append([]byte{byte(len(responses))}, bytes.Join(responses, nil)...))
}

func read(label uint16, eid uint32, to common.Address, flag codec.TimestampBlockFlag, value uint64, confirmations uint16) codec.Request {
	return &codec.SingleViewFunctionEVMCall{
		RequestLabel:        label,
		TargetEID:           eid,
		Flag:                flag,
		BlockNumOrTimestamp: value,
		BlockConfirmations:  confirmations,
		To:                  to,
		CallData:            []byte{byte(label)},
	}
}

func command(c codec.Compute, requests ...codec.Request) string {
	return (&codec.Command{
		Version:         codec.CommandVersion,
		AppCommandLabel: 7,
		Requests:        requests,
		Compute:         c,
	}).Hex()
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

var _ = ginkgo.Describe("[Time markers]", func() {
	ginkgo.It("resolves timestamps on every chain", func() {
		cmd := command(nil,
			read(0, ethereumEID, echoAddress, codec.FlagTimestamp, 130, 1),
			read(1, arbitrumEID, echoAddress, codec.FlagTimestamp, 105, 1),
			read(2, arbitrumEID, echoAddress, codec.FlagBlockNumber, 2, 1),
		)

		ctx, cancel := withTimeout()
		defer cancel()
		markers, err := cli.ExtractTimeMarkers(ctx, cmd)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(markers.BlockNumberTimeMarkers).Should(gomega.HaveLen(1))
		gomega.Ω(markers.TimestampTimeMarkers).Should(gomega.HaveLen(2))

		resolved, err := cli.ResolveTimeMarkers(ctx, markers.TimestampTimeMarkers)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(resolved).Should(gomega.HaveLen(2))
		// first ethereum block at or after 130 is block 4 (136)
		gomega.Ω(resolved[0].BlockNumber).Should(gomega.Equal(uint64(4)))
		// first arbitrum block at or after 105 is block 6 (107)
		gomega.Ω(resolved[1].BlockNumber).Should(gomega.Equal(uint64(6)))

		payload, err := cli.ResolveCommand(ctx, cmd, resolved)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(payload).Should(gomega.Equal([]byte{0, 4, 1, 6, 2, 2}))
	})
})

var _ = ginkgo.Describe("[Compute]", func() {
	ginkgo.It("maps and reduces responses of several chains", func() {
		ctx, cancel := withTimeout()
		defer cancel()

		payload, err := cli.Resolve(ctx, command(
			&codec.ComputeEVM{
				Setting:             codec.MapReduce,
				TargetEID:           arbitrumEID,
				Flag:                codec.FlagBlockNumber,
				BlockNumOrTimestamp: 3,
				BlockConfirmations:  1,
				To:                  computeAddress,
			},
			read(0, ethereumEID, echoAddress, codec.FlagBlockNumber, 2, 1),
			read(1, arbitrumEID, echoAddress, codec.FlagTimestamp, 111, 1),
		))
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(payload).Should(gomega.Equal([]byte{2, 0xaa, 0, 2, 0xaa, 1, 7}))
	})
})

var _ = ginkgo.Describe("[Failures]", func() {
	ginkgo.It("reports reverts as unresolvable", func() {
		ctx, cancel := withTimeout()
		defer cancel()

		_, err := cli.Resolve(ctx, command(nil, read(0, ethereumEID, revertAddress, codec.FlagBlockNumber, 2, 1)))
		gomega.Ω(err).Should(gomega.MatchError(client.ErrUnresolvable))
		gomega.Ω(err.Error()).Should(gomega.ContainSubstring("stale price"))
	})

	ginkgo.It("rejects malformed commands", func() {
		ctx, cancel := withTimeout()
		defer cancel()

		_, err := cli.Resolve(ctx, "0x00010001")
		gomega.Ω(err).Should(gomega.MatchError(client.ErrInvalidCommand))
	})

	ginkgo.It("waits for confirmations", func() {
		ethereum := nodes[0].chain
		cmd := command(nil, read(0, ethereumEID, echoAddress, codec.FlagBlockNumber, ethereum.Head(), 2))

		ctx, cancel := withTimeout()
		defer cancel()
		calls := ethereum.Calls(echoAddress)
		_, err := cli.Resolve(ctx, cmd)
		gomega.Ω(err).Should(gomega.MatchError(client.ErrUnconfirmed))
		gomega.Ω(ethereum.Calls(echoAddress)).Should(gomega.Equal(calls))

		ginkgo.By("mining two more blocks", func() {
			ethereum.Mine(172, 184)
		})
		payload, err := cli.Resolve(ctx, cmd)
		gomega.Ω(err).Should(gomega.BeNil())
		gomega.Ω(payload).Should(gomega.Equal([]byte{0, 6}))
	})
})

// Outputs to stdout.
//
// e.g.,
//
//	Out("{{green}}{{bold}}hi there %q{{/}}", "aa")
//	Out("{{magenta}}{{bold}}hi therea{{/}} {{cyan}}{{underline}}b{{/}}")
func outf(format string, args ...interface{}) {
	s := formatter.F(format, args...)
	fmt.Fprint(formatter.ColorableStdOut, s)
}
