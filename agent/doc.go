// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent implements the crew members that perform task work.

# Overview

An [Agent] is a named role bound to a fixed set of capabilities and a
delegation flag. It is immutable after [New]: capability names are resolved
against the capability registry once, so an unknown name is reported when
the crew is built rather than when a task runs.

# Acting

[Agent.Act] performs one unit of work:

	out, err := a.Act(ctx, agent.Request{
	    TaskID: "research",
	    Input:  "Research the latest developments in Go",
	    Calls:  []agent.Call{{Capability: "web_search", Args: capability.Args{"query": "Go"}}},
	})

Each call runs in order. Its output is folded into the generation context
under "capability.<name>" and a repeated capability gets a "#n" suffix. The
generator is called last. A capability error surfaces as CAPABILITY_FAILURE
and a generator error as GENERATION_FAILURE; neither is replaced by an
empty result.

# Managers

[NewManager] builds the manager agent of a hierarchical crew. Its capability
set is the union of its members' sets. [LLMManager] turns the manager
agent's generator into a scheduling decision (approve, reassign or rework)
for each task.
*/
package agent
