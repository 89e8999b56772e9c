package sqlinline

// Provider API keys managed through tasvirctl. Only QSelectIntegrationToken
// reads the key itself; listings expose the fingerprint kept in properties.

const QSelectIntegrationToken = `--sql b3faba08-c691-4046-8ff5-452f4f22a6e0
select token
from integration_tokens
where provider = $1::text
  and token <> '';
`

// QUpsertIntegrationToken merges new properties over the stored ones so a
// rotated key keeps its other metadata.
const QUpsertIntegrationToken = `--sql 5b7c5edd-505e-4026-9f4f-79bd45ac43ed
insert into integration_tokens (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update set
    token = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`

const QListIntegrationTokens = `--sql 0a65f472-9cd3-4753-b3d0-a4bb1ede8f1b
select provider,
       coalesce(properties->>'fingerprint', '') as fingerprint,
       updated_at
from integration_tokens
order by provider;
`

const QDeleteIntegrationToken = `--sql 2e85ec6e-6b03-4899-a396-98f74cde3706
delete from integration_tokens
where provider = $1::text;
`
