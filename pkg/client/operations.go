package client

import "soroscan/pkg/core"

// Selection sets shared across operation documents. The event fields mirror
// events.Event so results decode without a mapping layer.
const (
	contractFields = `id contractId name description isActive createdAt eventCount`
	eventFields    = `id contractId contractName eventType ledger eventIndex txHash timestamp payload payloadHash schemaVersion validationStatus`
)

var (
	contractsOp = core.MustOperation(`query GetContracts($isActive: Boolean) {
		contracts(isActive: $isActive) { `+contractFields+` }
	}`, nil)

	contractOp = core.MustOperation(`query GetContract($contractId: String!) {
		contract(contractId: $contractId) { `+contractFields+` }
	}`, nil)

	eventsOp = core.MustOperation(`query GetEvents($contractId: String, $eventType: String, $ledgerMin: Int, $ledgerMax: Int, $first: Int, $after: String, $since: DateTime, $until: DateTime) {
		events(contractId: $contractId, eventType: $eventType, ledgerMin: $ledgerMin, ledgerMax: $ledgerMax, first: $first, after: $after, since: $since, until: $until) {
			edges { node { `+eventFields+` } cursor }
			pageInfo { hasNextPage endCursor }
			totalCount
		}
	}`, nil)

	eventOp = core.MustOperation(`query GetEvent($id: Int!) {
		event(id: $id) { `+eventFields+` }
	}`, nil)

	contractStatsOp = core.MustOperation(`query GetContractStats($contractId: String!) {
		contractStats(contractId: $contractId) {
			contractId name totalEvents uniqueEventTypes lastActivity
		}
	}`, nil)

	eventTypesOp = core.MustOperation(`query GetEventTypes($contractId: String!) {
		eventTypes(contractId: $contractId)
	}`, nil)

	eventTimelineOp = core.MustOperation(`query GetEventTimeline($contractId: String!, $bucketSize: TimelineBucketSize, $eventTypes: [String!], $since: DateTime, $until: DateTime) {
		eventTimeline(contractId: $contractId, bucketSize: $bucketSize, eventTypes: $eventTypes, since: $since, until: $until) {
			contractId bucketSize since until totalEvents
			groups {
				start end eventCount
				eventTypeCounts { eventType count }
				events { `+eventFields+` }
			}
		}
	}`, nil)

	registerContractOp = core.MustOperation(`mutation RegisterContract($contractId: String!, $name: String!, $description: String) {
		registerContract(contractId: $contractId, name: $name, description: $description) { `+contractFields+` }
	}`, nil)

	updateContractOp = core.MustOperation(`mutation UpdateContract($contractId: String!, $name: String, $description: String, $isActive: Boolean) {
		updateContract(contractId: $contractId, name: $name, description: $description, isActive: $isActive) { `+contractFields+` }
	}`, nil)

	contractEventsOp = core.MustOperation(`subscription OnContractEvents($contractId: String!) {
		contractEvents(contractId: $contractId) { `+eventFields+` }
	}`, nil)

	loginOp = core.MustOperation(`mutation Login($username: String!, $password: String!) {
		login(username: $username, password: $password) { accessToken refreshToken }
	}`, nil)
)
