// Package client provides the client half of the `rtm` command line.
//
// Every command that talks to a broker accepts --url (env RTM_URL, default
// ws://127.0.0.1:8080/v2), --appkey, --role and --secret. When the role or
// secret is omitted it is read from the apps file (--apps, default
// ~/.rtm.yaml) using the reserved app of the command: _pubsub for
// publish/subscribe/kv, _admin for admin, _health for health and _stats for
// monitor.
//
// Usage
//
//	rtm init                      # writes ~/.rtm.yaml with fresh secrets
//	rtm secret                    # prints a new secret
//
//	rtm publish --channel news --data '{"text":"hello"}'
//	rtm publish --channel a,b --data plain-text
//
//	rtm subscribe --channel news
//	rtm subscribe --filter 'SELECT * FROM sensors WHERE temp > 30' --position 0-0
//	rtm subscribe --channel orders --resume orders-cursor --limit 10
//
//	rtm write --channel config --data '{"mode":"fast"}'
//	rtm read --channel config
//	rtm delete --channel config
//
//	rtm admin connections
//	rtm admin close --id 1a2b3c4d
//	rtm admin close --all
//
//	rtm health
//	rtm monitor --limit 5
package client
